// Character HTTP handlers.
//
//   - GET    /characters               (list, optional auth)
//   - GET    /characters/featured
//   - GET    /characters/categories
//   - GET    /characters/{id}          (optional auth)
//   - POST   /characters
//   - PUT    /characters/{id}          (creator only)
//   - DELETE /characters/{id}          (creator only)
//   - POST   /characters/{id}/like     (toggle)
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

// ListCharactersQuery are the catalog filters.
type ListCharactersQuery struct {
	Page      int    `form:"page" binding:"omitempty,min=1" example:"1"`
	Limit     int    `form:"limit" binding:"omitempty,min=1,max=100" example:"20"`
	Category  string `form:"category" binding:"omitempty,max=50" example:"fantasy"`
	Search    string `form:"search" binding:"omitempty,max=100" example:"detective"`
	Sort      string `form:"sort" binding:"omitempty,oneof=popular newest rating name" example:"popular"`
	CreatorID string `form:"creator_id" binding:"omitempty,uuid"`
}

// CharacterRequest is the create/update payload. On update every field is
// optional; on create name and description are required by the service.
type CharacterRequest struct {
	Name          *string   `json:"name" binding:"omitempty,max=100" example:"Sherlock Holmes"`
	Description   *string   `json:"description" binding:"omitempty,max=2000" example:"Consulting detective of 221B Baker Street"`
	Personality   *string   `json:"personality" binding:"omitempty,max=4000"`
	Background    *string   `json:"background" binding:"omitempty,max=4000"`
	SpeakingStyle *string   `json:"speaking_style" binding:"omitempty,max=2000"`
	Traits        *[]string `json:"traits" binding:"omitempty,max=20,dive,max=50"`
	Tags          *[]string `json:"tags" binding:"omitempty,max=20,dive,max=50"`
	Category      *string   `json:"category" binding:"omitempty,max=50" example:"mystery"`
	AvatarURL     *string   `json:"avatar_url" binding:"omitempty,max=512"`
	IsPublic      *bool     `json:"is_public"`
	AIProvider    *string   `json:"ai_provider" binding:"omitempty,max=32" example:"anthropic"`
	AIModel       *string   `json:"ai_model" binding:"omitempty,max=100"`
}

func (r CharacterRequest) input() services.CharacterInput {
	return services.CharacterInput{
		Name:          r.Name,
		Description:   r.Description,
		Personality:   r.Personality,
		Background:    r.Background,
		SpeakingStyle: r.SpeakingStyle,
		Traits:        r.Traits,
		Tags:          r.Tags,
		Category:      r.Category,
		AvatarURL:     r.AvatarURL,
		IsPublic:      r.IsPublic,
		AIProvider:    r.AIProvider,
		AIModel:       r.AIModel,
	}
}

// CharacterResponse wraps one character.
type CharacterResponse struct {
	Character *domain.Character `json:"character"`
}

// CharacterListResponse wraps an unpaginated list.
type CharacterListResponse struct {
	Characters []domain.Character `json:"characters"`
}

// CategoriesResponse wraps the categories in use.
type CategoriesResponse struct {
	Categories []services.Category `json:"categories"`
}

//
// Handlers
//

// ListCharacters godoc
// @ID          listCharacters
// @Summary     List characters
// @Description Public characters plus, for a signed-in caller, their own private ones.
// @Tags        Characters
// @Produce     json
// @Param       page        query     int     false  "Page"      minimum(1) default(1)
// @Param       limit       query     int     false  "Per page"  minimum(1) maximum(100) default(20)
// @Param       category    query     string  false  "Category"
// @Param       search      query     string  false  "Name, description or tag"
// @Param       sort        query     string  false  "Order"     Enums(popular, newest, rating, name) default(popular)
// @Param       creator_id  query     string  false  "Creator"   format(uuid)
// @Success     200         {object}  services.CharacterPage
// @Failure     400         {object}  middleware.ErrorBody
// @Router      /characters [get]
func (h *Handlers) ListCharacters(c *gin.Context) {
	var q ListCharactersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		failBind(c, err)
		return
	}
	page, err := h.chars.List(c.Request.Context(), userID(c), services.CharacterQuery{
		Page:      q.Page,
		Limit:     q.Limit,
		Category:  q.Category,
		Search:    q.Search,
		Sort:      q.Sort,
		CreatorID: q.CreatorID,
	})
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

// FeaturedCharacters godoc
// @ID          featuredCharacters
// @Summary     Featured characters
// @Tags        Characters
// @Produce     json
// @Success     200  {object}  handlers.CharacterListResponse
// @Router      /characters/featured [get]
func (h *Handlers) FeaturedCharacters(c *gin.Context) {
	items, err := h.chars.Featured(c.Request.Context())
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, http.StatusOK, CharacterListResponse{Characters: items})
}

// CharacterCategories godoc
// @ID          characterCategories
// @Summary     Categories in use
// @Tags        Characters
// @Produce     json
// @Success     200  {object}  handlers.CategoriesResponse
// @Router      /characters/categories [get]
func (h *Handlers) CharacterCategories(c *gin.Context) {
	cats, err := h.chars.Categories(c.Request.Context())
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, http.StatusOK, CategoriesResponse{Categories: cats})
}

// GetCharacter godoc
// @ID          getCharacter
// @Summary     Character detail
// @Description Counts a view. Private characters are visible to their creator only.
// @Tags        Characters
// @Produce     json
// @Param       id   path      string  true  "Character ID"  format(uuid)
// @Success     200  {object}  handlers.CharacterResponse
// @Failure     400  {object}  middleware.ErrorBody
// @Failure     404  {object}  middleware.ErrorBody
// @Router      /characters/{id} [get]
func (h *Handlers) GetCharacter(c *gin.Context) {
	id, valid := pathUUID(c, "id")
	if !valid {
		return
	}
	ch, err := h.chars.Get(c.Request.Context(), id, userID(c))
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, http.StatusOK, CharacterResponse{Character: ch})
}

// CreateCharacter godoc
// @ID          createCharacter
// @Summary     Create a character
// @Tags        Characters
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.CharacterRequest  true  "Character"
// @Success     201   {object}  handlers.CharacterResponse
// @Failure     400   {object}  middleware.ErrorBody
// @Failure     401   {object}  middleware.ErrorBody
// @Router      /characters [post]
func (h *Handlers) CreateCharacter(c *gin.Context) {
	var req CharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBind(c, err)
		return
	}
	ch, err := h.chars.Create(c.Request.Context(), userID(c), req.input())
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, CharacterResponse{Character: ch})
}

// UpdateCharacter godoc
// @ID          updateCharacter
// @Summary     Update a character
// @Tags        Characters
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      string                     true  "Character ID"  format(uuid)
// @Param       body  body      handlers.CharacterRequest  true  "Fields to change"
// @Success     200   {object}  handlers.CharacterResponse
// @Failure     400   {object}  middleware.ErrorBody
// @Failure     403   {object}  middleware.ErrorBody  "Not the creator"
// @Failure     404   {object}  middleware.ErrorBody
// @Router      /characters/{id} [put]
func (h *Handlers) UpdateCharacter(c *gin.Context) {
	id, valid := pathUUID(c, "id")
	if !valid {
		return
	}
	var req CharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failBind(c, err)
		return
	}
	ch, err := h.chars.Update(c.Request.Context(), id, userID(c), req.input())
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, http.StatusOK, CharacterResponse{Character: ch})
}

// DeleteCharacter godoc
// @ID          deleteCharacter
// @Summary     Delete a character
// @Tags        Characters
// @Security    BearerAuth
// @Param       id   path      string  true  "Character ID"  format(uuid)
// @Success     204  {string}  string  "No Content"
// @Failure     403  {object}  middleware.ErrorBody  "Not the creator"
// @Failure     404  {object}  middleware.ErrorBody
// @Router      /characters/{id} [delete]
func (h *Handlers) DeleteCharacter(c *gin.Context) {
	id, valid := pathUUID(c, "id")
	if !valid {
		return
	}
	if err := h.chars.Delete(c.Request.Context(), id, userID(c)); err != nil {
		h.failErr(c, err)
		return
	}
	noContent(c)
}

// LikeCharacter godoc
// @ID          likeCharacter
// @Summary     Toggle a like
// @Tags        Characters
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Character ID"  format(uuid)
// @Success     200  {object}  services.LikeResult
// @Failure     404  {object}  middleware.ErrorBody
// @Router      /characters/{id}/like [post]
func (h *Handlers) LikeCharacter(c *gin.Context) {
	id, valid := pathUUID(c, "id")
	if !valid {
		return
	}
	res, err := h.chars.ToggleLike(c.Request.Context(), id, userID(c))
	if err != nil {
		h.failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}
