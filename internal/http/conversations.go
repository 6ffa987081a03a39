package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/prepstream/shipment-relay/internal/model"
	"github.com/prepstream/shipment-relay/internal/service/relay"
)

type postMessageReq struct {
	Body      string `json:"body"`
	Direction string `json:"direction"` // "inbound" | "outbound"
	ReplyTo   string `json:"reply_to,omitempty"`
}

type conversationView struct {
	ID               string    `json:"id"`
	CustomerAlias    string    `json:"customer_alias"`
	Direction        string    `json:"direction"`
	Body             string    `json:"body"`
	ReplyToMessageID string    `json:"reply_to_message_id,omitempty"`
	ReplyToSnippet   string    `json:"reply_to_snippet,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func toConversationView(m model.ConversationMessage) conversationView {
	v := conversationView{
		ID:            m.ID,
		CustomerAlias: m.CustomerAlias,
		Direction:     string(m.Direction),
		Body:          m.Body,
		CreatedAt:     m.CreatedAt,
	}
	if m.ReplyToMessageID.Valid {
		v.ReplyToMessageID = m.ReplyToMessageID.String
	}
	if m.ReplyToSnippet.Valid {
		v.ReplyToSnippet = m.ReplyToSnippet.String
	}
	return v
}

func postConversationMessageHandler(relaySvc *relay.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		alias := strings.TrimSpace(c.Param("alias"))

		var req postMessageReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		req.Body = strings.TrimSpace(req.Body)
		if alias == "" || req.Body == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		if utf8.RuneCountInString(req.Body) > 4000 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "body too long"})
		}

		direction := model.Direction(strings.ToLower(strings.TrimSpace(req.Direction)))
		if direction == "" {
			direction = model.DirectionInbound
		}
		if !direction.Valid() {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid direction"})
		}

		var reply *relay.ReplyRef
		if req.ReplyTo != "" {
			reply = &relay.ReplyRef{MessageID: req.ReplyTo}
		}

		msg, err := relaySvc.PostConversationMessage(c.Request().Context(), alias, direction, req.Body, reply)
		if err != nil {
			log.Errorf("post conversation message failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusCreated, toConversationView(msg))
	}
}

func listConversationHandler(relaySvc *relay.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		alias := strings.TrimSpace(c.Param("alias"))
		if alias == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "alias is required"})
		}

		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		msgs, err := relaySvc.ListConversation(c.Request().Context(), alias, limit, offset)
		if err != nil {
			c.Logger().Errorf("conversation list failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		views := make([]conversationView, 0, len(msgs))
		for _, m := range msgs {
			views = append(views, toConversationView(m))
		}

		return c.JSON(http.StatusOK, map[string]any{
			"alias":    alias,
			"count":    len(views),
			"messages": views,
		})
	}
}
