package domain

import (
	"errors"
	"fmt"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestExitCodeFor(t *testing.T) {
	Convey("Given errors from across the subsystem", t, func() {
		Convey("Each sentinel maps to its contractual exit code", func() {
			So(ExitCodeFor(nil), ShouldEqual, ExitOK)
			So(ExitCodeFor(ErrConfiguration), ShouldEqual, ExitConfiguration)
			So(ExitCodeFor(ErrConnection), ShouldEqual, ExitConnection)
			So(ExitCodeFor(ErrCreation), ShouldEqual, ExitCreation)
			So(ExitCodeFor(ErrVerification), ShouldEqual, ExitVerification)
		})

		Convey("Wrapped sentinels still map through errors.Is", func() {
			wrapped := fmt.Errorf("failed to dump trading: %w", ErrCreation)
			So(ExitCodeFor(wrapped), ShouldEqual, ExitCreation)

			doubly := fmt.Errorf("backup run aborted: %w", wrapped)
			So(ExitCodeFor(doubly), ShouldEqual, ExitCreation)
		})

		Convey("Unclassified errors fall back to the general code", func() {
			So(ExitCodeFor(errors.New("something else")), ShouldEqual, ExitGeneral)
			So(ExitCodeFor(ErrLocked), ShouldEqual, ExitGeneral)
		})
	})
}
