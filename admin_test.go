package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminRoutesRequirePersistedRole(t *testing.T) {
	r := setupTest(t)
	admin, adminToken := createTestUser(t, "boss1", RoleAdmin)
	_, userToken := createTestUser(t, "pleb1", RoleUser)

	w := doRequest(t, r, "GET", "/api/admin/users", userToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(t, r, "GET", "/api/admin/users", adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Demotion bites on the next request, same token.
	require.NoError(t, DB.Model(&admin).Update("role", RoleUser).Error)
	w = doRequest(t, r, "GET", "/api/admin/users", adminToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminBlockUnblockUser(t *testing.T) {
	r := setupTest(t)
	_, adminToken := createTestUser(t, "boss2", RoleAdmin)
	target, targetToken := createTestUser(t, "target2", RoleUser)

	w := doRequest(t, r, "PUT", fmt.Sprintf("/api/admin/users/%d/block", target.ID), adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, r, "GET", "/api/events", targetToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(t, r, "PUT", fmt.Sprintf("/api/admin/users/%d/unblock", target.ID), adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, r, "GET", "/api/events", targetToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminEditUserRole(t *testing.T) {
	r := setupTest(t)
	_, adminToken := createTestUser(t, "boss3", RoleAdmin)
	target, _ := createTestUser(t, "target3", RoleUser)
	path := fmt.Sprintf("/api/admin/users/%d", target.ID)

	w := doRequest(t, r, "PUT", path, adminToken, gin.H{"role": "superuser"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, r, "PUT", path, adminToken, gin.H{"role": RoleAdmin, "firstName": "Tee"})
	require.Equal(t, http.StatusOK, w.Code)

	var stored User
	require.NoError(t, DB.First(&stored, target.ID).Error)
	assert.Equal(t, RoleAdmin, stored.Role)
	assert.Equal(t, "Tee", stored.FirstName)
}

func TestAdminDeleteUserNoCascade(t *testing.T) {
	r := setupTest(t)
	_, adminToken := createTestUser(t, "boss4", RoleAdmin)
	target, targetToken := createTestUser(t, "target4", RoleUser)
	eventID := createTestEvent(t, r, targetToken, "Orphaned event", EventTypePublic, nil)

	w := doRequest(t, r, "DELETE", fmt.Sprintf("/api/admin/users/%d", target.ID), adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var user User
	assert.Error(t, DB.First(&user, target.ID).Error)

	// The owned event stays behind; deletion does not cascade.
	var ev Event
	assert.NoError(t, DB.First(&ev, eventID).Error)
}

func TestDeleteRequestLifecycle(t *testing.T) {
	r := setupTest(t)
	_, adminToken := createTestUser(t, "boss5", RoleAdmin)
	requester, requesterToken := createTestUser(t, "leaver5", RoleUser)

	w := doRequest(t, r, "POST", "/api/delete-requests", requesterToken, gin.H{"reason": "moving on"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// At most one request per user.
	w = doRequest(t, r, "POST", "/api/delete-requests", requesterToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(t, r, "GET", "/api/admin/delete-requests", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var requests []DeleteRequest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &requests))
	require.Len(t, requests, 1)
	assert.Equal(t, "moving on", requests[0].Reason)
	assert.Equal(t, DeleteStatusPending, requests[0].Status)

	// Approval removes both the request and the account.
	w = doRequest(t, r, "POST", fmt.Sprintf("/api/admin/delete-requests/%d/approve", requests[0].ID), adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var user User
	assert.Error(t, DB.First(&user, requester.ID).Error)
	var count int64
	require.NoError(t, DB.Model(&DeleteRequest{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDeleteRequestReject(t *testing.T) {
	r := setupTest(t)
	_, adminToken := createTestUser(t, "boss6", RoleAdmin)
	requester, requesterToken := createTestUser(t, "leaver6", RoleUser)

	w := doRequest(t, r, "POST", "/api/delete-requests", requesterToken, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	reqID := uint(decodeBody(t, w)["id"].(float64))
	path := fmt.Sprintf("/api/admin/delete-requests/%d/reject", reqID)

	w = doRequest(t, r, "POST", path, adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stored DeleteRequest
	require.NoError(t, DB.First(&stored, reqID).Error)
	assert.Equal(t, DeleteStatusRejected, stored.Status)

	// The account survives a rejection, and re-resolving conflicts.
	var user User
	assert.NoError(t, DB.First(&user, requester.ID).Error)
	w = doRequest(t, r, "POST", path, adminToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUserProfileSelfService(t *testing.T) {
	r := setupTest(t)
	user, token := createTestUser(t, "selfie", RoleUser)

	w := doRequest(t, r, "GET", "/api/users/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.EqualValues(t, user.ID, body["id"])

	w = doRequest(t, r, "PUT", "/api/users/me", token, gin.H{
		"firstName": "Sel",
		"password":  "newsecret",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var stored User
	require.NoError(t, DB.First(&stored, user.ID).Error)
	assert.Equal(t, "Sel", stored.FirstName)
	assert.True(t, CheckPassword("newsecret", stored.Password))

	// Short passwords bounce without touching the record.
	w = doRequest(t, r, "PUT", "/api/users/me", token, gin.H{"password": "abc"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchUsers(t *testing.T) {
	r := setupTest(t)
	_, token := createTestUser(t, "finder", RoleUser)
	createTestUser(t, "anna", RoleUser)
	createTestUser(t, "annette", RoleUser)
	createTestUser(t, "bob", RoleUser)

	w := doRequest(t, r, "GET", "/api/users?search=ann", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var found []UserSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &found))
	require.Len(t, found, 2)
	assert.Equal(t, "anna", found[0].Username)
	assert.Equal(t, "annette", found[1].Username)
}
