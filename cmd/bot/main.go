package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"barterforge.ai/internal/protocol"
)

func main() {
	var (
		url    = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		party  = flag.Int64("party", 1, "party id")
		name   = flag.String("name", "bot", "party name")
		vendor = flag.Int64("vendor", 0, "vendor to trade with")
		offer  = flag.String("offer", "", "comma separated item ids to offer")
		option = flag.String("option", "", "move the vendor menu entry whose name contains this")
		accept = flag.Bool("accept", true, "accept whenever the trade changes")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	if *vendor <= 0 {
		logger.Fatalf("missing -vendor")
	}
	items, err := parseIDs(*offer)
	if err != nil {
		logger.Fatalf("-offer: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PartyID:         *party,
		Name:            *name,
		MaxQueue:        16,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	c := &customer{vendor: *vendor, offer: items, option: *option, accept: *accept}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.Close()
	}()

	for !c.finished {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Printf("read: %v", err)
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		var out []protocol.InstantReq
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME party=%d name=%s tick=%d", w.PartyID, w.Name, w.Tick)
			out = c.welcome()

		case protocol.TypeEvents:
			var em protocol.EventsMsg
			if err := json.Unmarshal(msg, &em); err != nil {
				continue
			}
			for _, ev := range em.Events {
				logger.Printf("tick=%d %v", em.Tick, ev)
				out = append(out, c.handle(ev)...)
			}
		}
		if len(out) == 0 {
			continue
		}
		act := protocol.ActMsg{Type: protocol.TypeAct, ProtocolVersion: protocol.Version, Instants: out}
		if err := conn.WriteJSON(act); err != nil {
			logger.Printf("send ACT: %v", err)
			return
		}
	}
	logger.Printf("trade finished: %s", c.outcome)
}

func parseIDs(s string) ([]int64, error) {
	var out []int64
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// customer drives one trade with a vendor from the events it sees.
type customer struct {
	vendor int64
	offer  []int64
	option string
	accept bool

	seq      int
	started  bool
	moved    bool
	finished bool
	outcome  string
}

func (c *customer) ref(kind string) string {
	c.seq++
	return fmt.Sprintf("%s_%d", kind, c.seq)
}

func (c *customer) welcome() []protocol.InstantReq {
	return []protocol.InstantReq{{ID: c.ref("req"), Type: protocol.InstantTradeRequest, With: c.vendor}}
}

func (c *customer) handle(ev protocol.Event) []protocol.InstantReq {
	typ, _ := ev["type"].(string)
	switch typ {
	case protocol.EventTradeStarted:
		c.started = true
		out := make([]protocol.InstantReq, 0, len(c.offer))
		for _, id := range c.offer {
			out = append(out, protocol.InstantReq{ID: c.ref("offer"), Type: protocol.InstantTradeOffer, Item: id})
		}
		return out

	case protocol.EventTradeItemAdded:
		if c.moved || c.option == "" || ev["window"] != "OFFER_B" {
			return nil
		}
		name, _ := ev["name"].(string)
		if !strings.Contains(name, c.option) {
			return nil
		}
		id, ok := eventInt(ev["item"])
		if !ok {
			return nil
		}
		c.moved = true
		return []protocol.InstantReq{{ID: c.ref("move"), Type: protocol.InstantTradeMove, Item: id, To: "REQUEST_A"}}

	case protocol.EventTradeChanged:
		if !c.accept || !c.started || (c.option != "" && !c.moved) {
			return nil
		}
		rev, ok := eventInt(ev["rev"])
		if !ok {
			return nil
		}
		return []protocol.InstantReq{{ID: c.ref("accept"), Type: protocol.InstantTradeAccept, Rev: uint64(rev)}}

	case protocol.EventTradeDone, protocol.EventTradeCancelled:
		c.finished = true
		c.outcome = typ
		if reason, ok := ev["reason"].(string); ok && reason != "" {
			c.outcome += ": " + reason
		}
	}
	return nil
}

// eventInt reads a JSON number from a decoded event.
func eventInt(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case uint64:
		return int64(n), true
	}
	return 0, false
}
