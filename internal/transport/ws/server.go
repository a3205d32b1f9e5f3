package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"barterforge.ai/internal/protocol"
	"barterforge.ai/internal/sim/market"
	"barterforge.ai/internal/sim/model"
)

type Server struct {
	market *market.Market
	log    *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(m *market.Market, logger *log.Logger) *Server {
	return &Server{
		market: m,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		partyID, out := s.handshake(r.Context(), conn)
		if partyID == model.NoParty {
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeAct {
				continue
			}
			if err := protocol.ValidateAct(msg); err != nil {
				reject(out, partyID, s.market.CurrentTick(), err.Error())
				continue
			}
			var act protocol.ActMsg
			if err := json.Unmarshal(msg, &act); err != nil {
				continue
			}
			if act.ProtocolVersion != protocol.Version {
				reject(out, partyID, s.market.CurrentTick(), "bad protocol_version")
				continue
			}
			select {
			case s.market.Inbox() <- market.ActionEnvelope{PartyID: partyID, Act: act}:
			case <-ctx.Done():
			}
		}

		// Cleanup. Leaving cancels any open trade.
		cancel()
		s.market.Leave() <- partyID
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (model.PartyID, chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return model.NoParty, nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return model.NoParty, nil
	}
	if err := protocol.ValidateHello(msg); err != nil {
		closeWith(conn, "bad HELLO")
		return model.NoParty, nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return model.NoParty, nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return model.NoParty, nil
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}
	out := make(chan []byte, maxQ)

	respCh := make(chan market.JoinResponse, 1)
	select {
	case s.market.Join() <- market.JoinRequest{PartyID: model.PartyID(hello.PartyID), Name: hello.Name, Out: out, Resp: respCh}:
	case <-ctx.Done():
		return model.NoParty, nil
	}
	var resp market.JoinResponse
	select {
	case resp = <-respCh:
	case <-ctx.Done():
		return model.NoParty, nil
	}
	if resp.Err != "" {
		s.logf("join %d refused: %s", hello.PartyID, resp.Err)
		closeWith(conn, resp.Err)
		return model.NoParty, nil
	}
	if err := writeJSON(conn, resp.Welcome); err != nil {
		s.market.Leave() <- model.PartyID(hello.PartyID)
		return model.NoParty, nil
	}
	return model.PartyID(resp.Welcome.PartyID), out
}

// reject answers a malformed ACT without involving the market loop.
func reject(out chan []byte, party model.PartyID, tick uint64, msg string) {
	b, err := json.Marshal(protocol.EventsMsg{
		Type:            protocol.TypeEvents,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		PartyID:         int64(party),
		Events: []protocol.Event{{
			"type":    protocol.EventActionResult,
			"ok":      false,
			"code":    protocol.ErrProtoBadRequest,
			"message": msg,
		}},
	})
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
	}
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
