package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// -----------------------------
// Contacts lists
// -----------------------------

type CreateContactsListRequest struct {
	Title    string `json:"title" binding:"required"`
	Contacts []uint `json:"contacts"`
	// A "creator" field sent by the client is ignored on purpose: the
	// creator is always the authenticated caller.
}

func CreateContactsList(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body CreateContactsListRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	if len(body.Contacts) > 0 {
		var count int64
		if err := DB.Model(&User{}).Where("id IN ?", body.Contacts).
			Count(&count).Error; err != nil {
			jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
			return
		}
		if count != int64(len(dedupeIDs(body.Contacts))) {
			jsonError(c, http.StatusBadRequest, "one or more contacts do not exist")
			return
		}
	}

	list := ContactsList{
		Title:     strings.TrimSpace(body.Title),
		CreatorID: userID,
	}

	if err := DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&list).Error; err != nil {
			return err
		}
		for _, contactID := range dedupeIDs(body.Contacts) {
			member := ContactsListMember{ListID: list.ID, UserID: contactID}
			if err := tx.Create(&member).Error; err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		jsonError(c, http.StatusInternalServerError, "could not create contacts list: "+err.Error())
		return
	}

	c.JSON(http.StatusCreated, list)
}

func dedupeIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// GetMyContactsLists returns the caller's lists with members resolved to
// user summaries.
func GetMyContactsLists(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var lists []ContactsList
	if err := DB.Preload("Members.User").Where("creator_id = ?", userID).
		Order("created_at desc").Find(&lists).Error; err != nil {
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}

	type listResponse struct {
		ID       uint          `json:"id"`
		Title    string        `json:"title"`
		Contacts []UserSummary `json:"contacts"`
	}
	out := make([]listResponse, 0, len(lists))
	for _, list := range lists {
		resp := listResponse{ID: list.ID, Title: list.Title, Contacts: []UserSummary{}}
		for _, m := range list.Members {
			resp.Contacts = append(resp.Contacts, m.User.Summary())
		}
		out = append(out, resp)
	}

	c.JSON(http.StatusOK, out)
}

func DeleteContactsList(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	listID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var list ContactsList
	if err := DB.First(&list, listID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			jsonError(c, http.StatusNotFound, "contacts list not found")
		} else {
			jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		}
		return
	}

	if list.CreatorID != userID {
		jsonError(c, http.StatusForbidden, "only the creator can delete the list")
		return
	}

	if err := DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("list_id = ?", list.ID).Delete(&ContactsListMember{}).Error; err != nil {
			return err
		}
		return tx.Delete(&ContactsList{}, list.ID).Error
	}); err != nil {
		jsonError(c, http.StatusInternalServerError, "delete failed: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "contacts list deleted"})
}
