package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// -----------------------------
// Admin: user moderation
// -----------------------------

func AdminSearchUsers(c *gin.Context) {
	page, limit := parsePagination(c)
	search := strings.TrimSpace(c.Query("search"))

	query := DB.Model(&User{})
	if search != "" {
		term := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ?", term, term)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}

	var users []User
	if err := query.Order("created_at desc").
		Offset((page - 1) * limit).Limit(limit).
		Find(&users).Error; err != nil {
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	c.JSON(http.StatusOK, gin.H{
		"users":      users,
		"totalUsers": total,
		"totalPages": totalPages,
		"page":       page,
	})
}

func fetchUser(c *gin.Context, id uint) (User, bool) {
	var user User
	if err := DB.First(&user, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			jsonError(c, http.StatusNotFound, "user not found")
		} else {
			jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		}
		return User{}, false
	}
	return user, true
}

func setBlocked(c *gin.Context, blocked bool) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	user, ok := fetchUser(c, userID)
	if !ok {
		return
	}

	user.IsBlocked = blocked
	if err := DB.Save(&user).Error; err != nil {
		jsonError(c, http.StatusInternalServerError, "could not update user: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, user)
}

func AdminBlockUser(c *gin.Context)   { setBlocked(c, true) }
func AdminUnblockUser(c *gin.Context) { setBlocked(c, false) }

type AdminUpdateUserRequest struct {
	UpdateProfileRequest
	Role *string `json:"role"`
}

func AdminUpdateUser(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	user, ok := fetchUser(c, userID)
	if !ok {
		return
	}

	var body AdminUpdateUserRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	if err := applyProfileUpdate(&user, body.UpdateProfileRequest); err != nil {
		jsonError(c, errStatus(err), err.Error())
		return
	}
	if body.Role != nil {
		if *body.Role != RoleUser && *body.Role != RoleAdmin {
			jsonError(c, http.StatusBadRequest, "role must be user or admin")
			return
		}
		user.Role = *body.Role
	}

	if err := DB.Save(&user).Error; err != nil {
		jsonError(c, http.StatusConflict, "username, email or phone already in use")
		return
	}
	c.JSON(http.StatusOK, user)
}

// AdminDeleteUser removes the account record only. Events and series the
// user owns are left behind; there is no cascade.
func AdminDeleteUser(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if _, ok := fetchUser(c, userID); !ok {
		return
	}

	if err := DB.Delete(&User{}, userID).Error; err != nil {
		jsonError(c, http.StatusInternalServerError, "delete failed: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
}

// -----------------------------
// Admin: deletion requests
// -----------------------------

func AdminListDeleteRequests(c *gin.Context) {
	var requests []DeleteRequest
	if err := DB.Order("requested_at asc").Find(&requests).Error; err != nil {
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, requests)
}

func fetchDeleteRequest(c *gin.Context, id uint) (DeleteRequest, bool) {
	var req DeleteRequest
	if err := DB.First(&req, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			jsonError(c, http.StatusNotFound, "delete request not found")
		} else {
			jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		}
		return DeleteRequest{}, false
	}
	return req, true
}

// AdminApproveDeleteRequest removes the user and the request together.
func AdminApproveDeleteRequest(c *gin.Context) {
	reqID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	req, ok := fetchDeleteRequest(c, reqID)
	if !ok {
		return
	}
	if req.Status != DeleteStatusPending {
		jsonError(c, http.StatusConflict, "request already resolved")
		return
	}

	if err := DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&User{}, req.UserID).Error; err != nil {
			return err
		}
		return tx.Delete(&DeleteRequest{}, req.ID).Error
	}); err != nil {
		jsonError(c, http.StatusInternalServerError, "approve failed: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "account deleted"})
}

func AdminRejectDeleteRequest(c *gin.Context) {
	reqID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	req, ok := fetchDeleteRequest(c, reqID)
	if !ok {
		return
	}
	if req.Status != DeleteStatusPending {
		jsonError(c, http.StatusConflict, "request already resolved")
		return
	}

	req.Status = DeleteStatusRejected
	if err := DB.Save(&req).Error; err != nil {
		jsonError(c, http.StatusInternalServerError, "reject failed: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, req)
}
