package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/besttime/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.MinClearTimeMS, convey.ShouldEqual, 2000)
			convey.So(cfg.BroadcastWindow, convey.ShouldEqual, 10)
			convey.So(cfg.BroadcastQueueSize, convey.ShouldEqual, 1024)
			convey.So(cfg.MaxPageLimit, convey.ShouldEqual, 100)
			convey.So(cfg.Transport, convey.ShouldEqual, config.TransportMemory)
			convey.So(cfg.RankingChannel, convey.ShouldEqual, "ranking_update")
			convey.So(cfg.RebuildOnStart, convey.ShouldBeTrue)
			convey.So(cfg.TokenTTL(), convey.ShouldEqual, 24*time.Hour)
			convey.So(cfg.NameResolveTimeout(), convey.ShouldEqual, 200*time.Millisecond)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a config with a broken field", t, func() {
		cases := map[string]func(c *config.Config){
			"empty addr":        func(c *config.Config) { c.Addr = "" },
			"zero window":       func(c *config.Config) { c.BroadcastWindow = 0 },
			"zero queue":        func(c *config.Config) { c.BroadcastQueueSize = 0 },
			"zero page limit":   func(c *config.Config) { c.MaxPageLimit = 0 },
			"negative floor":    func(c *config.Config) { c.MinClearTimeMS = -1 },
			"empty database":    func(c *config.Config) { c.DatabasePath = "" },
			"empty secret":      func(c *config.Config) { c.JWTSecret = "" },
			"unknown transport": func(c *config.Config) { c.Transport = "kafka" },
			"nats without url":  func(c *config.Config) { c.Transport = config.TransportNATS; c.NATSURL = "" },
			"empty channel":     func(c *config.Config) { c.RankingChannel = "" },
		}

		for name, mutate := range cases {
			cfg := config.New()
			mutate(cfg)
			err := cfg.Validate()

			convey.Convey("Then "+name+" should be rejected", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})
}
