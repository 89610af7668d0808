package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	chat "takahome/client/chat/domain"
	contract "takahome/client/contract/domain"
	commonauth "takahome/common/auth"
	"takahome/common/middleware"
	"takahome/common/transport/httpresp"
	"takahome/server/devbackend/service"
	"takahome/server/devbackend/store"
)

type Handler struct {
	store *store.Store
	chat     *service.ChatService
	bookings *service.BookingService
	hub      *service.Hub
	auth     *commonauth.Service
}

func NewHandler(st *store.Store, chatSvc *service.ChatService, bookingSvc *service.BookingService, hub *service.Hub, auth *commonauth.Service) *Handler {
	return &Handler{store: st, chat: chatSvc, bookings: bookingSvc, hub: hub, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) { httpresp.OK(c, gin.H{"status": "ok"}) })
	r.GET("/chat", middleware.SocketAuthRequired(h.auth), h.hub.HandleWS)

	r.POST("/api/dev/token", h.issueToken)

	api := r.Group("/api")
	api.Use(middleware.AuthRequired(h.auth))
	{
		api.GET("/bookings/me", h.myBookings)
		api.GET("/bookings/:id", h.getBooking)
		api.PATCH("/bookings/:id/cancel", h.bookingAction(store.ActionCancel, false))
		api.POST("/bookings/:id/approve", h.bookingAction(store.ActionApprove, true))
		api.POST("/bookings/:id/reject", h.bookingAction(store.ActionReject, false))
		api.POST("/bookings/:id/sign", h.bookingAction(store.ActionSign, true))
		api.POST("/bookings/:id/handover", h.bookingAction(store.ActionHandover, false))
		api.POST("/dev/bookings/:id/fund", h.bookingAction(store.ActionFund, false))
		api.GET("/invoices/contract/:id", h.contractInvoices)
		api.GET("/contracts/:id/file-url", h.contractFile)
		api.GET("/escrow/balance", h.escrowBalance)
		api.GET("/chatrooms/my-chats", h.myChatrooms)
		api.POST("/chatrooms/property/:propertyId", h.startChat)
		api.GET("/chatmessages/chatroom/:id", h.roomMessages)
		api.POST("/chatmessages", h.createMessage)
	}
}

func (h *Handler) issueToken(c *gin.Context) {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httpresp.Fail(c, http.StatusBadRequest, httpresp.ErrInvalidBody)
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		httpresp.Fail(c, http.StatusBadRequest, httpresp.ErrUserIDRequired)
		return
	}
	user, ok := h.store.User(userID)
	if !ok {
		httpresp.Fail(c, http.StatusNotFound, httpresp.ErrNotFound)
		return
	}
	token, err := h.auth.GenerateToken(user.ID, user.FullName, user.Role)
	if err != nil {
		httpresp.Fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	claims, err := h.auth.ParseToken(token)
	if err != nil {
		httpresp.Fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	resp := httpresp.TokenResponse{
		AccessToken: token,
		UserID:      user.ID,
		FullName:    user.FullName,
		Role:        user.Role,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Unix()
	}
	httpresp.Created(c, resp)
}

func (h *Handler) myBookings(c *gin.Context) {
	userID, _ := middleware.Actor(c)
	httpresp.OK(c, h.store.BookingsFor(userID, c.Query("condition")))
}

func (h *Handler) getBooking(c *gin.Context) {
	userID, _ := middleware.Actor(c)
	booking, err := h.store.Booking(userID, c.Param("id"))
	if err != nil {
		failStore(c, err)
		return
	}
	httpresp.OK(c, booking)
}

// bookingAction serves one lifecycle route. Signing routes accept an optional
// {signingOption} body.
func (h *Handler) bookingAction(action store.Action, signing bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := middleware.Actor(c)
		if signing && c.Request.ContentLength != 0 {
			var req contract.SigningRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				httpresp.Fail(c, http.StatusBadRequest, httpresp.ErrInvalidBody)
				return
			}
			if req.SigningOption != "" && !req.SigningOption.Valid() {
				httpresp.Fail(c, http.StatusBadRequest, httpresp.ErrSigningOption)
				return
			}
		}
		booking, err := h.bookings.Apply(c.Request.Context(), userID, c.Param("id"), action)
		if err != nil {
			failStore(c, err)
			return
		}
		httpresp.OK(c, booking)
	}
}

func (h *Handler) contractFile(c *gin.Context) {
	userID, _ := middleware.Actor(c)
	file, err := h.store.ContractFile(userID, c.Param("id"))
	if err != nil {
		failStore(c, err)
		return
	}
	httpresp.OK(c, file)
}

func (h *Handler) escrowBalance(c *gin.Context) {
	userID, _ := middleware.Actor(c)
	contractID := strings.TrimSpace(c.Query("contractId"))
	if contractID == "" {
		httpresp.Fail(c, http.StatusBadRequest, httpresp.ErrContractIDRequired)
		return
	}
	balance, err := h.store.EscrowBalance(userID, contractID)
	if err != nil {
		failStore(c, err)
		return
	}
	httpresp.OK(c, balance)
}

func (h *Handler) contractInvoices(c *gin.Context) {
	userID, _ := middleware.Actor(c)
	invoices, err := h.store.InvoicesByContract(userID, c.Param("id"))
	if err != nil {
		failStore(c, err)
		return
	}
	httpresp.OK(c, invoices)
}

func (h *Handler) myChatrooms(c *gin.Context) {
	userID, _ := middleware.Actor(c)
	httpresp.OK(c, h.chat.Chatrooms(userID))
}

func (h *Handler) startChat(c *gin.Context) {
	userID, _ := middleware.Actor(c)
	room, err := h.chat.StartChat(userID, c.Param("propertyId"))
	if err != nil {
		failStore(c, err)
		return
	}
	httpresp.OK(c, room)
}

func (h *Handler) roomMessages(c *gin.Context) {
	userID, _ := middleware.Actor(c)
	msgs, err := h.chat.Messages(userID, c.Param("id"))
	if err != nil {
		failStore(c, err)
		return
	}
	httpresp.OK(c, msgs)
}

func (h *Handler) createMessage(c *gin.Context) {
	userID, _ := middleware.Actor(c)
	var req chat.PersistMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpresp.Fail(c, http.StatusBadRequest, httpresp.ErrInvalidBody)
		return
	}
	if strings.TrimSpace(req.ChatroomID) == "" {
		httpresp.Fail(c, http.StatusBadRequest, httpresp.ErrChatroomRequired)
		return
	}
	if req.SenderID != "" && req.SenderID != userID {
		httpresp.Fail(c, http.StatusForbidden, httpresp.ErrForbidden)
		return
	}
	msg, err := h.chat.CreateMessage(c.Request.Context(), req.ChatroomID, userID, req.Content, "")
	if err != nil {
		failStore(c, err)
		return
	}
	httpresp.Created(c, msg)
}

func failStore(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		httpresp.Fail(c, http.StatusNotFound, httpresp.ErrNotFound)
	case errors.Is(err, store.ErrForbidden):
		httpresp.Fail(c, http.StatusForbidden, httpresp.ErrForbidden)
	case errors.Is(err, store.ErrInvalidTransition):
		httpresp.Fail(c, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrSelfChat):
		httpresp.Fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrContentRequired):
		httpresp.Fail(c, http.StatusBadRequest, httpresp.ErrContentRequired)
	default:
		httpresp.Fail(c, http.StatusInternalServerError, err.Error())
	}
}
