// Conversation HTTP handlers.
//
//   - GET    /conversations                  (paginated, weak ETag)
//   - POST   /conversations
//   - GET    /conversations/{id}             (with character and messages)
//   - PUT    /conversations/{id}             (rename)
//   - DELETE /conversations/{id}
//   - DELETE /conversations/{id}/messages   (clear)
//   - GET    /conversations/{id}/stats
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/persona-chat-backend/internal/domain"
	"github.com/tbourn/persona-chat-backend/internal/services"
)

//
// DTOs
//

// ListConversationsQuery are the paging parameters.
type ListConversationsQuery struct {
	Page  int `form:"page" binding:"omitempty,min=1" example:"1"`
	Limit int `form:"limit" binding:"omitempty,min=1,max=100" example:"20"`
}

// CreateConversationRequest starts a conversation with a character.
type CreateConversationRequest struct {
	CharacterID string `json:"character_id" binding:"required,uuid" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	// Title defaults to "Chat with <character name>".
	Title string `json:"title" binding:"omitempty,max=255" example:"Case of the missing hat"`
}

// UpdateConversationRequest renames a conversation.
type UpdateConversationRequest struct {
	Title string `json:"title" binding:"required,max=255" example:"The Baskerville affair"`
}

// ConversationResponse wraps one conversation.
type ConversationResponse struct {
	Conversation *domain.Conversation `json:"conversation"`
}

// StatsResponse wraps conversation statistics.
type StatsResponse struct {
	Stats *services.ConversationStats `json:"stats"`
}

//
// Handlers
//

// ListConversations godoc
// @ID          listConversations
// @Summary     List conversations (paginated)
// @Description Most recently active first, each with its last message. Supports a weak ETag via If-None-Match and may return 304.
// @Tags        Conversations
// @Produce     json
// @Security    BearerAuth
// @Param       If-None-Match  header    string  false  "Return 304 if ETag matches"  example(W/"convs-abc-3-1714567890")
// @Param       page           query     int     false  "Page"      minimum(1) default(1)
// @Param       limit          query     int     false  "Per page"  minimum(1) maximum(100) default(20)
// @Success     200            {object}  services.ConversationPage
// @Header      200            {string}  ETag  "Weak ETag for the caller's conversation list"
// @Success     304            {string}  string  "Not Modified"
// @Failure     400            {object}  middleware.ErrorBody
// @Failure     401            {object}  middleware.ErrorBody
// @Router      /conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	var q ListConversationsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		failBind(c, err)
		return
	}
	ctx := c.Request.Context()
	uid := userID(c)

	// ETag pre-check (best effort).
	if etag, err := h.convs.Version(ctx, uid); err == nil {
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	page, err := h.convs.List(ctx, uid, q.Page, q.Limit)
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

// CreateConversation godoc
// @ID          createConversation
// @Summary     Start a conversation
// @Tags        Conversations
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.CreateConversationRequest  true  "Conversation"
// @Success     201   {object}  handlers.ConversationResponse
// @Failure     400   {object}  middleware.ErrorBody
// @Failure     404   {object}  middleware.ErrorBody  "Character not found"
// @Router      /conversations [post]
func (h *Handlers) CreateConversation(c *gin.Context) {
	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBind(c, err)
		return
	}
	conv, err := h.convs.Create(c.Request.Context(), userID(c), req.CharacterID, req.Title)
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, ConversationResponse{Conversation: conv})
}

// GetConversation godoc
// @ID          getConversation
// @Summary     Conversation with character and messages
// @Tags        Conversations
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Conversation ID"  format(uuid)
// @Success     200  {object}  handlers.ConversationResponse
// @Failure     404  {object}  middleware.ErrorBody
// @Router      /conversations/{id} [get]
func (h *Handlers) GetConversation(c *gin.Context) {
	id, valid := pathUUID(c, "id")
	if !valid {
		return
	}
	conv, err := h.convs.Get(c.Request.Context(), id, userID(c))
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ConversationResponse{Conversation: conv})
}

// UpdateConversation godoc
// @ID          updateConversation
// @Summary     Rename a conversation
// @Tags        Conversations
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      string                              true  "Conversation ID"  format(uuid)
// @Param       body  body      handlers.UpdateConversationRequest  true  "New title"
// @Success     200   {object}  handlers.ConversationResponse
// @Failure     400   {object}  middleware.ErrorBody
// @Failure     404   {object}  middleware.ErrorBody
// @Router      /conversations/{id} [put]
func (h *Handlers) UpdateConversation(c *gin.Context) {
	id, valid := pathUUID(c, "id")
	if !valid {
		return
	}
	var req UpdateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBind(c, err)
		return
	}
	conv, err := h.convs.UpdateTitle(c.Request.Context(), id, userID(c), req.Title)
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ConversationResponse{Conversation: conv})
}

// DeleteConversation godoc
// @ID          deleteConversation
// @Summary     Delete a conversation and its messages
// @Tags        Conversations
// @Security    BearerAuth
// @Param       id   path      string  true  "Conversation ID"  format(uuid)
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  middleware.ErrorBody
// @Router      /conversations/{id} [delete]
func (h *Handlers) DeleteConversation(c *gin.Context) {
	id, valid := pathUUID(c, "id")
	if !valid {
		return
	}
	if err := h.convs.Delete(c.Request.Context(), id, userID(c)); err != nil {
		h.failErr(c, err)
		return
	}
	noContent(c)
}

// ClearConversation godoc
// @ID          clearConversation
// @Summary     Delete every message, keep the conversation
// @Tags        Conversations
// @Security    BearerAuth
// @Param       id   path      string  true  "Conversation ID"  format(uuid)
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  middleware.ErrorBody
// @Router      /conversations/{id}/messages [delete]
func (h *Handlers) ClearConversation(c *gin.Context) {
	id, valid := pathUUID(c, "id")
	if !valid {
		return
	}
	if err := h.convs.Clear(c.Request.Context(), id, userID(c)); err != nil {
		h.failErr(c, err)
		return
	}
	noContent(c)
}

// ConversationStats godoc
// @ID          conversationStats
// @Summary     Message and word counts
// @Tags        Conversations
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Conversation ID"  format(uuid)
// @Success     200  {object}  handlers.StatsResponse
// @Failure     404  {object}  middleware.ErrorBody
// @Router      /conversations/{id}/stats [get]
func (h *Handlers) ConversationStats(c *gin.Context) {
	id, valid := pathUUID(c, "id")
	if !valid {
		return
	}
	st, err := h.convs.Stats(c.Request.Context(), id, userID(c))
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, http.StatusOK, StatsResponse{Stats: st})
}
