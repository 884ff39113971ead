package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/besttime/internal/config"
	"github.com/okian/besttime/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestRun(t *testing.T) {
	if err := logger.Init(); err != nil {
		t.Fatalf("init logger: %v", err)
	}

	convey.Convey("Given the server running on an ephemeral port", t, func() {
		cfg := config.New()
		cfg.Addr = "127.0.0.1:0"
		cfg.DatabasePath = filepath.Join(t.TempDir(), "besttime.db")

		ctx, cancel := context.WithCancel(context.Background())
		ready := make(chan string, 1)
		done := make(chan error, 1)
		go func() { done <- run(ctx, cfg, ready) }()

		var addr string
		select {
		case addr = <-ready:
		case err := <-done:
			t.Fatalf("run exited early: %v", err)
		case <-time.After(5 * time.Second):
			t.Fatal("server did not start")
		}

		convey.Convey("Then /health answers ok", func() {
			resp, err := http.Get("http://" + addr + "/health")
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()
			var body map[string]string
			convey.So(json.NewDecoder(resp.Body).Decode(&body), convey.ShouldBeNil)
			convey.So(body["status"], convey.ShouldEqual, "ok")
		})

		convey.Convey("And the API reference is served", func() {
			resp, err := http.Get("http://" + addr + "/openapi.yaml")
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("And system metrics are exported", func() {
			resp, err := http.Get("http://" + addr + "/healthz")
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(body), convey.ShouldContainSubstring, "besttime_ranking_system_goroutine_count")
		})

		convey.Reset(func() {
			cancel()
			select {
			case err := <-done:
				if err != nil {
					t.Errorf("run returned %v", err)
				}
			case <-time.After(10 * time.Second):
				t.Fatal("server did not stop")
			}
		})
	})

	convey.Convey("Given an address that cannot be bound", t, func() {
		cfg := config.New()
		cfg.Addr = "256.0.0.1:1"
		cfg.DatabasePath = filepath.Join(t.TempDir(), "besttime.db")

		err := run(context.Background(), cfg, nil)
		convey.So(err, convey.ShouldNotBeNil)
	})
}
