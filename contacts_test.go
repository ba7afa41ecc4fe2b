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

func TestCreateContactsListIgnoresClientCreator(t *testing.T) {
	r := setupTest(t)
	creator, token := createTestUser(t, "contacts1", RoleUser)
	friend, _ := createTestUser(t, "friend1", RoleUser)
	victim, _ := createTestUser(t, "victim1", RoleUser)

	// A spoofed creator field must not stick.
	w := doRequest(t, r, "POST", "/api/contacts-lists", token, gin.H{
		"title":    "Friends",
		"contacts": []uint{friend.ID},
		"creator":  victim.ID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var list ContactsList
	require.NoError(t, DB.First(&list).Error)
	assert.Equal(t, creator.ID, list.CreatorID)
}

func TestCreateContactsListUnknownMember(t *testing.T) {
	r := setupTest(t)
	_, token := createTestUser(t, "contacts2", RoleUser)

	w := doRequest(t, r, "POST", "/api/contacts-lists", token, gin.H{
		"title":    "Ghosts",
		"contacts": []uint{99999},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListMyContactsListsResolvesMembers(t *testing.T) {
	r := setupTest(t)
	_, token := createTestUser(t, "contacts3", RoleUser)
	friend, _ := createTestUser(t, "friend3", RoleUser)
	_, otherToken := createTestUser(t, "other3", RoleUser)

	w := doRequest(t, r, "POST", "/api/contacts-lists", token, gin.H{
		"title":    "Crew",
		"contacts": []uint{friend.ID, friend.ID}, // duplicates collapse
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(t, r, "GET", "/api/contacts-lists", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var lists []struct {
		ID       uint          `json:"id"`
		Title    string        `json:"title"`
		Contacts []UserSummary `json:"contacts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lists))
	require.Len(t, lists, 1)
	assert.Equal(t, "Crew", lists[0].Title)
	require.Len(t, lists[0].Contacts, 1)
	assert.Equal(t, "friend3", lists[0].Contacts[0].Username)

	// Lists are creator-scoped.
	w = doRequest(t, r, "GET", "/api/contacts-lists", otherToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lists))
	assert.Empty(t, lists)
}

func TestDeleteContactsList(t *testing.T) {
	r := setupTest(t)
	_, token := createTestUser(t, "contacts4", RoleUser)
	_, otherToken := createTestUser(t, "other4", RoleUser)

	w := doRequest(t, r, "POST", "/api/contacts-lists", token, gin.H{"title": "Temp"})
	require.Equal(t, http.StatusCreated, w.Code)
	listID := uint(decodeBody(t, w)["id"].(float64))
	path := fmt.Sprintf("/api/contacts-lists/%d", listID)

	w = doRequest(t, r, "DELETE", path, otherToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(t, r, "DELETE", path, token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, r, "DELETE", path, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
