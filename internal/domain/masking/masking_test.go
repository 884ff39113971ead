package masking_test

import (
	"testing"
	"unicode/utf8"

	"github.com/okian/besttime/internal/domain/masking"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMask(t *testing.T) {
	Convey("Given display names of various lengths", t, func() {
		cases := []struct {
			in, want string
		}{
			{"", ""},
			{"A", "A"},
			{"AB", "A*"},
			{"ABC", "A*C"},
			{"Alpha1234", "A*******4"},
			{"김철수", "김*수"},
			{"조이", "조*"},
		}

		for _, c := range cases {
			Convey("Mask("+c.in+") should be "+c.want, func() {
				So(masking.Mask(c.in), ShouldEqual, c.want)
			})
		}
	})

	Convey("Given any name of three or more runes", t, func() {
		name := "Élodie-Ω"
		got := masking.Mask(name)

		Convey("Then the rune length is preserved and the ends are kept", func() {
			So(utf8.RuneCountInString(got), ShouldEqual, utf8.RuneCountInString(name))
			So([]rune(got)[0], ShouldEqual, 'É')
			So([]rune(got)[len([]rune(got))-1], ShouldEqual, 'Ω')
		})
	})
}
