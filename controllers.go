package main

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// -----------------------------
// Helper functions
// -----------------------------

// parseEventTime accepts RFC3339 or "YYYY-MM-DD".
func parseEventTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func parseIDParam(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		jsonError(c, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

func parsePagination(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "10"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}
	return page, limit
}

func validateRecurrenceRule(rule *RecurrenceRule) error {
	if rule == nil {
		return fmt.Errorf("%w: recurrenceRule is required", ErrValidation)
	}
	switch rule.Frequency {
	case "daily", "weekly", "monthly":
	default:
		return fmt.Errorf("%w: frequency must be daily, weekly or monthly", ErrValidation)
	}
	if rule.Interval < 1 {
		return fmt.Errorf("%w: interval must be at least 1", ErrValidation)
	}
	return nil
}

// -----------------------------
// Participant set operations
// -----------------------------

// addParticipant inserts the membership row with ON CONFLICT DO NOTHING on
// the (event_id, user_id) unique index. Two concurrent adds for the same
// pair resolve at the database: exactly one lands, the other reports zero
// rows. Never read-modify-write the participant set.
func addParticipant(db *gorm.DB, eventID, userID uint) (bool, error) {
	res := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&EventParticipant{EventID: eventID, UserID: userID})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// removeParticipant deletes by composite key; reports whether a row went.
func removeParticipant(db *gorm.DB, eventID, userID uint) (bool, error) {
	res := db.Where("event_id = ? AND user_id = ?", eventID, userID).
		Delete(&EventParticipant{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func isParticipant(db *gorm.DB, eventID, userID uint) (bool, error) {
	var count int64
	err := db.Model(&EventParticipant{}).
		Where("event_id = ? AND user_id = ?", eventID, userID).
		Count(&count).Error
	return count > 0, err
}

// fetchEvent loads an event or writes the 404/500 response itself.
func fetchEvent(c *gin.Context, id uint) (Event, bool) {
	var ev Event
	if err := DB.First(&ev, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			jsonError(c, http.StatusNotFound, "event not found")
		} else {
			jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		}
		return Event{}, false
	}
	return ev, true
}

// canManageEvent is the mutation gate: owner or admin.
func canManageEvent(c *gin.Context, ev Event) bool {
	userID, _ := getUserIDFromContext(c)
	return ev.OwnerID == userID || isAdminRequest(c)
}

// -----------------------------
// Events
// -----------------------------

type EventLocation struct {
	Address string `json:"address"`
	City    string `json:"city"`
	Country string `json:"country"`
}

type CreateEventRequest struct {
	Title          string          `json:"title" binding:"required"`
	Description    string          `json:"description"`
	Type           string          `json:"type"`
	StartTime      string          `json:"startTime" binding:"required"` // RFC3339 or YYYY-MM-DD
	EndTime        string          `json:"endTime"`
	CoverPhoto     string          `json:"coverPhoto"`
	Location       EventLocation   `json:"location"`
	IsRecurring    bool            `json:"isRecurring"`
	RecurrenceRule *RecurrenceRule `json:"recurrenceRule"`
	Participants   []string        `json:"participants"` // usernames
}

func CreateEvent(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body CreateEventRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	start, err := parseEventTime(body.StartTime)
	if err != nil {
		jsonError(c, http.StatusBadRequest, "invalid startTime format (use RFC3339 or YYYY-MM-DD)")
		return
	}
	end := start
	if body.EndTime != "" {
		end, err = parseEventTime(body.EndTime)
		if err != nil {
			jsonError(c, http.StatusBadRequest, "invalid endTime format (use RFC3339 or YYYY-MM-DD)")
			return
		}
	}

	eventType := body.Type
	if eventType == "" {
		eventType = EventTypePublic
	}
	if eventType != EventTypePublic && eventType != EventTypePrivate {
		jsonError(c, http.StatusBadRequest, "type must be public or private")
		return
	}

	ev := Event{
		Title:           strings.TrimSpace(body.Title),
		Description:     body.Description,
		Type:            eventType,
		StartTime:       start,
		EndTime:         end,
		OwnerID:         userID,
		CoverPhoto:      body.CoverPhoto,
		LocationAddress: body.Location.Address,
		LocationCity:    body.Location.City,
		LocationCountry: body.Location.Country,
		IsRecurring:     body.IsRecurring,
	}

	if body.IsRecurring {
		if err := validateRecurrenceRule(body.RecurrenceRule); err != nil {
			jsonError(c, errStatus(err), err.Error())
			return
		}
		ev.Recurrence = *body.RecurrenceRule
	}

	// Resolve participant usernames before anything is written.
	participantIDs := map[uint]struct{}{userID: {}}
	if len(body.Participants) > 0 {
		var users []User
		if err := DB.Where("username IN ?", body.Participants).Find(&users).Error; err != nil {
			jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
			return
		}
		found := map[string]uint{}
		for _, u := range users {
			found[u.Username] = u.ID
		}
		for _, name := range body.Participants {
			id, ok := found[name]
			if !ok {
				jsonError(c, http.StatusBadRequest, "unknown participant username: "+name)
				return
			}
			participantIDs[id] = struct{}{}
		}
	}

	if err := DB.Create(&ev).Error; err != nil {
		jsonError(c, http.StatusInternalServerError, "could not create event: "+err.Error())
		return
	}

	// The owner is always a member; the conflict clause makes this safe if
	// the owner also listed their own username.
	for id := range participantIDs {
		if _, err := addParticipant(DB, ev.ID, id); err != nil {
			jsonError(c, http.StatusInternalServerError, "could not add participant: "+err.Error())
			return
		}
	}

	c.JSON(http.StatusCreated, ev)
}

// GetVisibleEvents returns events the caller owns plus every public event.
func GetVisibleEvents(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var events []Event
	if err := DB.Where("owner_id = ? OR type = ?", userID, EventTypePublic).
		Order("start_time asc").Find(&events).Error; err != nil {
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, events)
}

// GetPublicEvents is the only unauthenticated event listing.
func GetPublicEvents(c *gin.Context) {
	var events []Event
	if err := DB.Where("type = ?", EventTypePublic).
		Order("start_time asc").Find(&events).Error; err != nil {
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, events)
}

func GetMyEvents(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var events []Event
	if err := DB.Where("owner_id = ?", userID).
		Order("start_time asc").Find(&events).Error; err != nil {
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, events)
}

func GetParticipatingEvents(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var events []Event
	if err := DB.Joins("JOIN event_participants ep ON ep.event_id = events.id").
		Where("ep.user_id = ?", userID).
		Order("events.start_time asc").Find(&events).Error; err != nil {
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, events)
}

// GetEvent returns one event with participants and invitations resolved.
// Private events are visible to the owner, participants and admins only.
func GetEvent(c *gin.Context) {
	eventID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var ev Event
	if err := DB.Preload("Participants.User").Preload("Invitations").
		First(&ev, eventID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			jsonError(c, http.StatusNotFound, "event not found")
		} else {
			jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		}
		return
	}

	if ev.Type == EventTypePrivate && !canManageEvent(c, ev) {
		userID, _ := getUserIDFromContext(c)
		member, err := isParticipant(DB, ev.ID, userID)
		if err != nil {
			jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
			return
		}
		if !member {
			jsonError(c, http.StatusForbidden, "private event")
			return
		}
	}

	c.JSON(http.StatusOK, ev)
}

type UpdateEventRequest struct {
	Title          *string         `json:"title"`
	Description    *string         `json:"description"`
	Type           *string         `json:"type"`
	StartTime      *string         `json:"startTime"`
	EndTime        *string         `json:"endTime"`
	CoverPhoto     *string         `json:"coverPhoto"`
	Location       *EventLocation  `json:"location"`
	IsRecurring    *bool           `json:"isRecurring"`
	RecurrenceRule *RecurrenceRule `json:"recurrenceRule"`
}

func UpdateEvent(c *gin.Context) {
	eventID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	ev, ok := fetchEvent(c, eventID)
	if !ok {
		return
	}
	if !canManageEvent(c, ev) {
		jsonError(c, http.StatusForbidden, "only the owner can edit the event")
		return
	}

	var body UpdateEventRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	if body.Title != nil {
		ev.Title = strings.TrimSpace(*body.Title)
	}
	if body.Description != nil {
		ev.Description = *body.Description
	}
	if body.Type != nil {
		if *body.Type != EventTypePublic && *body.Type != EventTypePrivate {
			jsonError(c, http.StatusBadRequest, "type must be public or private")
			return
		}
		ev.Type = *body.Type
	}
	if body.StartTime != nil {
		t, err := parseEventTime(*body.StartTime)
		if err != nil {
			jsonError(c, http.StatusBadRequest, "invalid startTime format")
			return
		}
		ev.StartTime = t
	}
	if body.EndTime != nil {
		t, err := parseEventTime(*body.EndTime)
		if err != nil {
			jsonError(c, http.StatusBadRequest, "invalid endTime format")
			return
		}
		ev.EndTime = t
	}
	if body.CoverPhoto != nil {
		ev.CoverPhoto = *body.CoverPhoto
	}
	if body.Location != nil {
		ev.LocationAddress = body.Location.Address
		ev.LocationCity = body.Location.City
		ev.LocationCountry = body.Location.Country
	}
	if body.IsRecurring != nil {
		ev.IsRecurring = *body.IsRecurring
	}
	if body.RecurrenceRule != nil {
		if err := validateRecurrenceRule(body.RecurrenceRule); err != nil {
			jsonError(c, errStatus(err), err.Error())
			return
		}
		ev.Recurrence = *body.RecurrenceRule
	}
	if ev.IsRecurring && ev.Recurrence.Frequency == "" {
		jsonError(c, http.StatusBadRequest, "recurring event needs a recurrenceRule")
		return
	}

	if err := DB.Save(&ev).Error; err != nil {
		jsonError(c, http.StatusInternalServerError, "could not update event: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, ev)
}

func DeleteEvent(c *gin.Context) {
	eventID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	ev, ok := fetchEvent(c, eventID)
	if !ok {
		return
	}
	if !canManageEvent(c, ev) {
		jsonError(c, http.StatusForbidden, "only the owner can delete the event")
		return
	}

	// Membership and invitation rows go with the event in one transaction.
	if err := DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ?", ev.ID).Delete(&EventParticipant{}).Error; err != nil {
			return err
		}
		if err := tx.Where("event_id = ?", ev.ID).Delete(&EventInvitation{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Event{}, ev.ID).Error
	}); err != nil {
		jsonError(c, http.StatusInternalServerError, "delete failed: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "event deleted"})
}

// -----------------------------
// Participation
// -----------------------------

type InviteRequest struct {
	Username string `json:"username" binding:"required"`
}

// InviteUser adds the named user straight to the participant set and
// records a pending invitation. Any authenticated caller may invite;
// only existence and duplicate membership are checked.
func InviteUser(c *gin.Context) {
	if _, ok := getUserIDFromContext(c); !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	eventID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var body InviteRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	ev, ok := fetchEvent(c, eventID)
	if !ok {
		return
	}

	var invitee User
	if err := DB.Where("username = ?", body.Username).First(&invitee).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			jsonError(c, http.StatusNotFound, "invited user not found")
			return
		}
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}

	added, err := addParticipant(DB, ev.ID, invitee.ID)
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "could not invite: "+err.Error())
		return
	}
	if !added {
		jsonError(c, http.StatusConflict, "user is already a participant")
		return
	}

	inv := EventInvitation{EventID: ev.ID, UserID: invitee.ID, Status: InviteStatusPending}
	if err := DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&inv).Error; err != nil {
		jsonError(c, http.StatusInternalServerError, "could not record invitation: "+err.Error())
		return
	}

	Notify.Publish(invitee.ID, "event:invited", gin.H{
		"eventId": ev.ID,
		"title":   ev.Title,
	})

	c.JSON(http.StatusOK, gin.H{"message": "user invited"})
}

func JoinEvent(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	eventID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	ev, ok := fetchEvent(c, eventID)
	if !ok {
		return
	}

	if ev.OwnerID == userID {
		jsonError(c, http.StatusForbidden, "cannot join your own event")
		return
	}
	if ev.Type == EventTypePrivate {
		jsonError(c, http.StatusForbidden, "Cannot join private event")
		return
	}

	added, err := addParticipant(DB, ev.ID, userID)
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "could not join: "+err.Error())
		return
	}
	if !added {
		jsonError(c, http.StatusConflict, "already a participant")
		return
	}

	// A pending invitation, if any, is considered accepted by joining.
	DB.Model(&EventInvitation{}).
		Where("event_id = ? AND user_id = ? AND status = ?", ev.ID, userID, InviteStatusPending).
		Update("status", InviteStatusAccepted)

	Notify.Publish(ev.OwnerID, "event:joined", gin.H{
		"eventId": ev.ID,
		"userId":  userID,
	})

	c.JSON(http.StatusOK, gin.H{"message": "joined event"})
}

func LeaveEvent(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	eventID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if _, ok := fetchEvent(c, eventID); !ok {
		return
	}

	removed, err := removeParticipant(DB, eventID, userID)
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "could not leave: "+err.Error())
		return
	}
	if !removed {
		jsonError(c, http.StatusConflict, "not a participant of this event")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "left event"})
}

func RemoveParticipant(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	eventID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	targetID, ok := parseIDParam(c, "participantId")
	if !ok {
		return
	}
	ev, ok := fetchEvent(c, eventID)
	if !ok {
		return
	}

	if ev.OwnerID != userID {
		jsonError(c, http.StatusForbidden, "only the owner can remove participants")
		return
	}
	if targetID == ev.OwnerID {
		jsonError(c, http.StatusBadRequest, "owner cannot be removed from their own event")
		return
	}

	removed, err := removeParticipant(DB, eventID, targetID)
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "could not remove participant: "+err.Error())
		return
	}
	if !removed {
		jsonError(c, http.StatusBadRequest, "user is not a participant")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "participant removed"})
}

type RespondRequest struct {
	Status string `json:"status" binding:"required"` // accepted | declined
}

// RespondToInvitation lets an invited user accept or decline. Accepting
// also ensures membership; the set-add keeps it idempotent against a
// concurrent join.
func RespondToInvitation(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	eventID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var body RespondRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	status := strings.ToLower(strings.TrimSpace(body.Status))
	if status != InviteStatusAccepted && status != InviteStatusDeclined {
		jsonError(c, http.StatusBadRequest, "status must be accepted or declined")
		return
	}

	var inv EventInvitation
	if err := DB.Where("event_id = ? AND user_id = ?", eventID, userID).
		First(&inv).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			jsonError(c, http.StatusNotFound, "no invitation for this event")
			return
		}
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}

	inv.Status = status
	if err := DB.Save(&inv).Error; err != nil {
		jsonError(c, http.StatusInternalServerError, "could not update invitation: "+err.Error())
		return
	}

	if status == InviteStatusAccepted {
		if _, err := addParticipant(DB, eventID, userID); err != nil {
			jsonError(c, http.StatusInternalServerError, "could not join: "+err.Error())
			return
		}
	} else {
		if _, err := removeParticipant(DB, eventID, userID); err != nil {
			jsonError(c, http.StatusInternalServerError, "could not leave: "+err.Error())
			return
		}
	}

	c.JSON(http.StatusOK, inv)
}

// -----------------------------
// Admin event search
// -----------------------------

// AdminSearchEvents pages through all events, newest first, with a
// case-insensitive title substring filter.
func AdminSearchEvents(c *gin.Context) {
	page, limit := parsePagination(c)
	search := strings.TrimSpace(c.Query("search"))

	query := DB.Model(&Event{})
	if search != "" {
		query = query.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(search)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}

	var events []Event
	if err := query.Order("created_at desc").
		Offset((page - 1) * limit).Limit(limit).
		Find(&events).Error; err != nil {
		jsonError(c, http.StatusInternalServerError, "db error: "+err.Error())
		return
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	c.JSON(http.StatusOK, gin.H{
		"events":      events,
		"totalEvents": total,
		"totalPages":  totalPages,
		"page":        page,
	})
}
