package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"inclusion-quiz-service/internal/app"
	"inclusion-quiz-service/internal/domain"
)

// Outbound message types.
const (
	msgStarted  = "started"
	msgState    = "state"
	msgGraded   = "graded"
	msgClosed   = "closed"
	msgRejected = "rejected"
	msgError    = "error"
)

const closeGrace = time.Second

type WSHandler struct {
	service  *app.QuizService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler accepts upgrades from the listed origins. "*" allows any
// origin; an empty list keeps the same-origin default.
func NewWSHandler(service *app.QuizService, allowedOrigins []string, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		log:     log.With().Str("component", "ws").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// not a browser
			return true
		}
		for _, o := range allowed {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type indexPayload struct {
	Index *int `json:"index"`
}

type answerPayload struct {
	Index  *int          `json:"index"`
	Answer domain.Answer `json:"answer"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type rejectedPayload struct {
	Command string       `json:"command"`
	Phase   domain.Phase `json:"phase"`
}

type errorPayload struct {
	Message string `json:"message"`
}

var errMissingIndex = errors.New("payload must carry an index")

// ServeWS upgrades HTTP requests to websockets and drives one attempt per
// connection. The attempt is released when the connection goes away.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	learnerID := r.URL.Query().Get("learnerId")
	if quizID == "" || learnerID == "" {
		http.Error(w, "missing quizId or learnerId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	session, err := h.service.StartAttempt(r.Context(), quizID, learnerID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: msgError, Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer h.service.Release(session.ID())
	log := h.log.With().Str("attempt", session.ID()).Logger()

	updates, cancel := session.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Only this goroutine writes data frames, so writes never interleave.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Msg("ws write error")
				return
			}
			if msg.Type == msgClosed {
				deadline := time.Now().Add(closeGrace)
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "attempt closed"), deadline)
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		first := true
		gradedSent := false
		for {
			select {
			case view, ok := <-updates:
				if !ok {
					select {
					case send <- outboundMessage[any]{Type: msgClosed, Payload: nil}:
					case <-closeSignals:
					case <-writerDone:
					}
					return
				}
				typ := msgState
				switch {
				case first:
					typ = msgStarted
					first = false
				case view.Phase == domain.PhaseGraded && !gradedSent:
					typ = msgGraded
					gradedSent = true
				}
				select {
				case send <- outboundMessage[any]{Type: typ, Payload: view}:
				case <-closeSignals:
					return
				case <-writerDone:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	reply := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		accepted, err := h.dispatch(session, inbound)
		switch {
		case err != nil:
			reply(outboundMessage[any]{Type: msgError, Payload: errorPayload{Message: err.Error()}})
		case !accepted:
			reply(outboundMessage[any]{Type: msgRejected, Payload: rejectedPayload{Command: inbound.Type, Phase: session.Phase()}})
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// dispatch applies one inbound command. A false result with a nil error means
// the session refused the command in its current phase.
func (h *WSHandler) dispatch(session *app.Session, in inboundMessage) (bool, error) {
	switch in.Type {
	case "answer":
		var p answerPayload
		if err := decode(in.Payload, &p); err != nil {
			return false, err
		}
		if p.Index == nil {
			return false, errMissingIndex
		}
		return session.Answer(*p.Index, p.Answer)
	case "toggleFlag":
		idx, err := decodeIndex(in.Payload)
		if err != nil {
			return false, err
		}
		return session.ToggleFlag(idx), nil
	case "goTo":
		idx, err := decodeIndex(in.Payload)
		if err != nil {
			return false, err
		}
		return session.GoTo(idx), nil
	case "next":
		return session.Next(), nil
	case "prev":
		return session.Prev(), nil
	case "requestSubmit":
		return session.RequestSubmit(), nil
	case "cancelSubmit":
		return session.CancelSubmit(), nil
	case "confirmSubmit":
		return session.ConfirmSubmit(), nil
	case "retrySubmit":
		return session.RetrySubmit(), nil
	case "exit":
		return h.service.Exit(session.ID())
	case "acknowledge":
		return h.service.Acknowledge(session.ID())
	default:
		return false, errors.New("unsupported message type")
	}
}

func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return errors.New("missing payload")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errors.New("invalid payload: " + err.Error())
	}
	return nil
}

func decodeIndex(raw json.RawMessage) (int, error) {
	var p indexPayload
	if err := decode(raw, &p); err != nil {
		return 0, err
	}
	if p.Index == nil {
		return 0, errMissingIndex
	}
	return *p.Index, nil
}
