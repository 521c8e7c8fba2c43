// Chat HTTP handlers.
//
// This file exposes the messaging endpoints:
//   - POST   /chat/send                              (user message + AI reply, idempotent)
//   - POST   /chat/regenerate                        (replace the last AI reply)
//   - GET    /chat/{conversation_id}/messages        (cursor paginated)
//   - DELETE /chat/messages/{message_id}
//   - GET    /chat/messages/{message_id}/revisions   (replaced replies)
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/persona-chat-backend/internal/domain"
	"github.com/tbourn/persona-chat-backend/internal/http/middleware"
	"github.com/tbourn/persona-chat-backend/internal/services"
)

// HeaderIdempotentReplay marks a response served from a stored send result.
const HeaderIdempotentReplay = "Idempotent-Replay"

//
// DTOs
//

// SendMessageRequest is the chat send payload. Provider and model are used
// only when the character does not pin its own.
type SendMessageRequest struct {
	ConversationID string `json:"conversation_id" binding:"required,uuid" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	Message        string `json:"message" binding:"required" example:"What do you deduce from my boots?"`
	Provider       string `json:"provider" binding:"omitempty,max=32" example:"openai"`
	Model          string `json:"model" binding:"omitempty,max=100" example:"gpt-4o-mini"`
}

// RegenerateRequest selects the conversation whose last reply is replaced.
type RegenerateRequest struct {
	ConversationID string `json:"conversation_id" binding:"required,uuid" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	Provider       string `json:"provider" binding:"omitempty,max=32"`
	Model          string `json:"model" binding:"omitempty,max=100"`
}

// ListMessagesQuery is the history cursor.
type ListMessagesQuery struct {
	Limit  int    `form:"limit" binding:"omitempty,min=1" example:"50"`
	Before string `form:"before" example:"2024-05-01T12:00:00Z"`
}

// RevisionsResponse lists the replies a message replaced, oldest first.
type RevisionsResponse struct {
	Revisions []domain.MessageRevision `json:"revisions"`
}

//
// Handlers
//

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a message and get the character's reply
// @Description Persists the user message and the AI reply together. Provider failures still return 201 with fallback content. With an Idempotency-Key a retried request replays the stored exchange with 200.
// @Tags        Chat
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header    string                       false  "Client key for safe retries"  example(8a1c0b7e-send-1)
// @Param       body             body      handlers.SendMessageRequest  true   "Message"
// @Success     201              {object}  services.SendResult
// @Success     200              {object}  services.SendResult  "Replayed"
// @Header      200              {string}  Idempotent-Replay   "true"
// @Failure     400              {object}  middleware.ErrorBody
// @Failure     401              {object}  middleware.ErrorBody
// @Failure     404              {object}  middleware.ErrorBody  "Conversation not found"
// @Failure     409              {object}  middleware.ErrorBody  "Idempotency-Key used for another conversation"
// @Failure     429              {object}  middleware.ErrorBody
// @Router      /chat/send [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBind(c, err)
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)
	if middleware.IsReplay(c) {
		middleware.LoggerFrom(c).Debug().Str("idempotency_key", key).Msg("replaying stored exchange")
	}
	res, err := h.msgs.Send(c.Request.Context(), userID(c), services.SendInput{
		ConversationID:   req.ConversationID,
		Message:          req.Message,
		Provider:         req.Provider,
		Model:            req.Model,
		IdempotencyScope: middleware.IdempotencyScope(c),
		IdempotencyKey:   key,
	})
	if err != nil {
		h.failErr(c, err)
		return
	}
	if res.Replayed {
		c.Header(HeaderIdempotentReplay, "true")
		ok(c, http.StatusOK, res)
		return
	}
	ok(c, http.StatusCreated, res)
}

// RegenerateMessage godoc
// @ID          regenerateMessage
// @Summary     Regenerate the last reply
// @Description Replaces the newest assistant message in place. The previous content is kept as a revision.
// @Tags        Chat
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.RegenerateRequest  true  "Conversation"
// @Success     200   {object}  services.RegenerateResult
// @Failure     400   {object}  middleware.ErrorBody  "Nothing to regenerate"
// @Failure     404   {object}  middleware.ErrorBody
// @Router      /chat/regenerate [post]
func (h *Handlers) RegenerateMessage(c *gin.Context) {
	var req RegenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBind(c, err)
		return
	}
	res, err := h.msgs.Regenerate(c.Request.Context(), userID(c), services.RegenerateInput{
		ConversationID: req.ConversationID,
		Provider:       req.Provider,
		Model:          req.Model,
	})
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// ListMessages godoc
// @ID          listMessages
// @Summary     Conversation history
// @Description Returns up to limit messages older than before, in chronological order.
// @Tags        Chat
// @Produce     json
// @Security    BearerAuth
// @Param       conversation_id  path      string  true   "Conversation ID"  format(uuid)
// @Param       limit            query     int     false  "Max messages"     minimum(1) maximum(100) default(50)
// @Param       before           query     string  false  "RFC 3339 cursor"  format(date-time)
// @Success     200              {object}  services.MessagePage
// @Failure     400              {object}  middleware.ErrorBody
// @Failure     404              {object}  middleware.ErrorBody
// @Router      /chat/{conversation_id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	convID, valid := pathUUID(c, "conversation_id")
	if !valid {
		return
	}
	var q ListMessagesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		failBind(c, err)
		return
	}
	var before time.Time
	if q.Before != "" {
		t, err := time.Parse(time.RFC3339Nano, q.Before)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "before must be an RFC 3339 timestamp", nil)
			return
		}
		before = t
	}
	page, err := h.msgs.Messages(c.Request.Context(), userID(c), convID, q.Limit, before)
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

// DeleteMessage godoc
// @ID          deleteMessage
// @Summary     Delete one message
// @Tags        Chat
// @Security    BearerAuth
// @Param       message_id  path      string  true  "Message ID"  format(uuid)
// @Success     204         {string}  string  "No Content"
// @Failure     404         {object}  middleware.ErrorBody
// @Router      /chat/messages/{message_id} [delete]
func (h *Handlers) DeleteMessage(c *gin.Context) {
	id, valid := pathUUID(c, "message_id")
	if !valid {
		return
	}
	if err := h.msgs.DeleteMessage(c.Request.Context(), userID(c), id); err != nil {
		h.failErr(c, err)
		return
	}
	noContent(c)
}

// MessageRevisions godoc
// @ID          messageRevisions
// @Summary     Replies replaced by regeneration
// @Tags        Chat
// @Produce     json
// @Security    BearerAuth
// @Param       message_id  path      string  true  "Message ID"  format(uuid)
// @Success     200         {object}  handlers.RevisionsResponse
// @Failure     404         {object}  middleware.ErrorBody
// @Router      /chat/messages/{message_id}/revisions [get]
func (h *Handlers) MessageRevisions(c *gin.Context) {
	id, valid := pathUUID(c, "message_id")
	if !valid {
		return
	}
	revs, err := h.msgs.Revisions(c.Request.Context(), userID(c), id)
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, http.StatusOK, RevisionsResponse{Revisions: revs})
}
