package live_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/besttime/internal/adapters/http/live"
	"github.com/okian/besttime/internal/adapters/pubsub"
	"github.com/okian/besttime/internal/domain/types"
	logging "github.com/okian/besttime/pkg/logger"
)

type staticSource struct {
	rows []types.RankingRow
}

func (s staticSource) Snapshot(_ context.Context, k int) ([]types.RankingRow, error) {
	if k < len(s.rows) {
		return s.rows[:k], nil
	}
	return s.rows, nil
}

// publishingSource publishes an update while the first snapshot is being
// built and gives the hub time to fan it out.
type publishingSource struct {
	once      *sync.Once
	transport *pubsub.WatermillTransport
	update    []byte
}

func (s publishingSource) Snapshot(ctx context.Context, _ int) ([]types.RankingRow, error) {
	s.once.Do(func() {
		_ = s.transport.Publish(ctx, "ranking_update", s.update)
		time.Sleep(100 * time.Millisecond)
	})
	return []types.RankingRow{{Rank: 1, PlayerID: "p1", Name: "A***e", Record: "30.00"}}, nil
}

type failingSubscriber struct{}

func (failingSubscriber) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("transport down")
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readRows(conn *websocket.Conn) ([]types.RankingRow, error) {
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var rows []types.RankingRow
	err = json.Unmarshal(data, &rows)
	return rows, err
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestHub(t *testing.T) {
	if err := logging.Init(); err != nil {
		t.Fatalf("init logger: %v", err)
	}

	convey.Convey("Given a hub on an in-memory transport", t, func() {
		ctx := context.Background()
		transport := pubsub.NewMemory()
		defer transport.Close()

		initial := []types.RankingRow{{Rank: 1, PlayerID: "p1", Name: "A***e", Record: "30.00"}}
		hub := live.NewHub(transport,
			live.WithChannel("ranking_update"),
			live.WithSnapshotSource(staticSource{rows: initial}, 10),
		)
		convey.So(hub.Start(ctx), convey.ShouldBeNil)
		defer hub.Stop()

		srv := httptest.NewServer(hub)
		defer srv.Close()

		convey.Convey("A new client first receives the current snapshot", func() {
			conn := dial(t, srv)
			rows, err := readRows(conn)
			convey.So(err, convey.ShouldBeNil)
			convey.So(rows, convey.ShouldResemble, initial)
		})

		convey.Convey("Published snapshots reach every client in order", func() {
			a := dial(t, srv)
			b := dial(t, srv)
			_, _ = readRows(a)
			_, _ = readRows(b)
			convey.So(waitFor(func() bool { return hub.Clients() == 2 }), convey.ShouldBeTrue)

			for _, rec := range []string{"29.00", "28.00", "27.00"} {
				payload, _ := json.Marshal([]types.RankingRow{{Rank: 1, PlayerID: "p1", Name: "A***e", Record: rec}})
				convey.So(transport.Publish(ctx, "ranking_update", payload), convey.ShouldBeNil)
			}

			for _, conn := range []*websocket.Conn{a, b} {
				var got []string
				for i := 0; i < 3; i++ {
					rows, err := readRows(conn)
					convey.So(err, convey.ShouldBeNil)
					got = append(got, rows[0].Record)
				}
				convey.So(got, convey.ShouldResemble, []string{"29.00", "28.00", "27.00"})
			}
		})

		convey.Convey("Other channels are ignored", func() {
			conn := dial(t, srv)
			_, _ = readRows(conn)

			convey.So(transport.Publish(ctx, "something_else", []byte(`[]`)), convey.ShouldBeNil)
			payload, _ := json.Marshal([]types.RankingRow{{Rank: 1, Record: "10.00"}})
			convey.So(transport.Publish(ctx, "ranking_update", payload), convey.ShouldBeNil)

			rows, err := readRows(conn)
			convey.So(err, convey.ShouldBeNil)
			convey.So(rows[0].Record, convey.ShouldEqual, "10.00")
		})

		convey.Convey("A disconnected client is removed", func() {
			conn := dial(t, srv)
			_, _ = readRows(conn)
			convey.So(waitFor(func() bool { return hub.Clients() == 1 }), convey.ShouldBeTrue)

			_ = conn.Close()
			convey.So(waitFor(func() bool { return hub.Clients() == 0 }), convey.ShouldBeTrue)
		})

		convey.Convey("Starting twice is an error", func() {
			convey.So(errors.Is(hub.Start(ctx), live.ErrAlreadyStarted), convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given a transport that cannot subscribe", t, func() {
		hub := live.NewHub(failingSubscriber{})
		err := hub.Start(context.Background())
		convey.So(errors.Is(err, live.ErrSubscribe), convey.ShouldBeTrue)
	})

	convey.Convey("Given an origin allow-list", t, func() {
		transport := pubsub.NewMemory()
		defer transport.Close()
		hub := live.NewHub(transport, live.WithAllowedOrigins([]string{"https://game.example"}))
		convey.So(hub.Start(context.Background()), convey.ShouldBeNil)
		defer hub.Stop()
		srv := httptest.NewServer(hub)
		defer srv.Close()

		url := "ws" + strings.TrimPrefix(srv.URL, "http")
		_, resp, err := websocket.DefaultDialer.Dial(url, map[string][]string{"Origin": {"https://evil.example"}})
		convey.So(err, convey.ShouldNotBeNil)
		convey.So(resp.StatusCode, convey.ShouldEqual, 403)
	})
}

func TestHubConnectRace(t *testing.T) {
	if err := logging.Init(); err != nil {
		t.Fatalf("init logger: %v", err)
	}

	convey.Convey("Given an update published while a new client's snapshot is built", t, func() {
		ctx := context.Background()
		transport := pubsub.NewMemory()
		defer transport.Close()

		update, _ := json.Marshal([]types.RankingRow{{Rank: 1, PlayerID: "p2", Name: "B*b", Record: "25.00"}})
		hub := live.NewHub(transport,
			live.WithChannel("ranking_update"),
			live.WithSnapshotSource(publishingSource{once: &sync.Once{}, transport: transport, update: update}, 10),
		)
		convey.So(hub.Start(ctx), convey.ShouldBeNil)
		defer hub.Stop()

		srv := httptest.NewServer(hub)
		defer srv.Close()

		convey.Convey("The client still receives that update", func() {
			conn := dial(t, srv)
			var records []string
			for i := 0; i < 2; i++ {
				rows, err := readRows(conn)
				convey.So(err, convey.ShouldBeNil)
				records = append(records, rows[0].Record)
			}
			convey.So(records, convey.ShouldContain, "25.00")
			convey.So(records, convey.ShouldContain, "30.00")
		})
	})
}
