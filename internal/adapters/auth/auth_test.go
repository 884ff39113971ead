package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/smartystreets/goconvey/convey"
)

func TestService(t *testing.T) {
	Convey("Given a token service", t, func() {
		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		s := NewService("secret", time.Hour)
		s.now = func() time.Time { return now }

		Convey("When a token is issued", func() {
			token, exp, err := s.Issue("player-1", "Alpha")
			So(err, ShouldBeNil)
			So(exp, ShouldEqual, now.Add(time.Hour))

			Convey("Then it validates back to the player", func() {
				claims, err := s.Validate(token)
				So(err, ShouldBeNil)
				So(claims.Subject, ShouldEqual, "player-1")
				So(claims.Name, ShouldEqual, "Alpha")
			})

			Convey("Then it is rejected once expired", func() {
				s.now = func() time.Time { return now.Add(2 * time.Hour) }
				_, err := s.Validate(token)
				So(errors.Is(err, ErrExpiredToken), ShouldBeTrue)
			})

			Convey("Then another secret cannot verify it", func() {
				other := NewService("other", time.Hour)
				other.now = s.now
				_, err := other.Validate(token)
				So(errors.Is(err, ErrInvalidSignature), ShouldBeTrue)
			})
		})

		Convey("When a token uses the none algorithm", func() {
			unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
				RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer, Subject: "player-1"},
			}).SignedString(jwt.UnsafeAllowNoneSignatureType)
			So(err, ShouldBeNil)

			_, err = s.Validate(unsigned)
			So(err, ShouldNotBeNil)
		})

		Convey("When the token is garbage", func() {
			_, err := s.Validate("not-a-token")
			So(errors.Is(err, ErrInvalidToken), ShouldBeTrue)
		})
	})
}

func TestBearerToken(t *testing.T) {
	Convey("Given Authorization header values", t, func() {
		tok, err := BearerToken("Bearer abc.def")
		So(err, ShouldBeNil)
		So(tok, ShouldEqual, "abc.def")

		tok, err = BearerToken("bearer   xyz")
		So(err, ShouldBeNil)
		So(tok, ShouldEqual, "xyz")

		for _, h := range []string{"", "Bearer", "Basic abc", "Bearer   "} {
			_, err := BearerToken(h)
			So(errors.Is(err, ErrMissingToken), ShouldBeTrue)
		}
	})
}

func TestPlayerContext(t *testing.T) {
	Convey("Given a context", t, func() {
		_, ok := PlayerID(context.Background())
		So(ok, ShouldBeFalse)

		id, ok := PlayerID(WithPlayerID(context.Background(), "p1"))
		So(ok, ShouldBeTrue)
		So(id, ShouldEqual, "p1")
	})
}
