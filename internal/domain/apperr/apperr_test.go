package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/okian/arcade/internal/domain/apperr"
	. "github.com/smartystreets/goconvey/convey"
)

func TestKinds(t *testing.T) {
	Convey("Given errors built with the taxonomy helpers", t, func() {
		base := errors.New("no rows")

		Convey("WrapKind forces the kind and keeps the cause", func() {
			err := apperr.WrapKind("repo.get", apperr.KindNotFound, base)
			So(errors.Is(err, apperr.ErrNotFound), ShouldBeTrue)
			So(errors.Is(err, base), ShouldBeTrue)
			So(apperr.KindOf(err), ShouldEqual, apperr.KindNotFound)
			So(err.Error(), ShouldEqual, "repo.get: no rows")
		})

		Convey("Wrap keeps the inner kind through several layers", func() {
			inner := apperr.New("rank.set", apperr.KindBadRequest, "position out of range")
			outer := fmt.Errorf("handler: %w", apperr.Wrap("service.reorder", inner))
			So(apperr.KindOf(outer), ShouldEqual, apperr.KindBadRequest)
			So(errors.Is(outer, apperr.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(outer, apperr.ErrNotFound), ShouldBeFalse)
			So(apperr.Message(outer), ShouldEqual, "position out of range")
		})

		Convey("Plain errors are internal", func() {
			So(apperr.KindOf(base), ShouldEqual, apperr.KindInternal)
			So(apperr.Wrap("x", nil), ShouldBeNil)
			So(apperr.WrapKind("x", apperr.KindNotFound, nil), ShouldBeNil)
		})

		Convey("Invalid carries field errors", func() {
			err := apperr.Invalid("usage.validate",
				apperr.FieldError{Field: "sessionId", Message: "userId or sessionId is required"})
			wrapped := apperr.Wrap("api.submit", err)
			So(apperr.KindOf(wrapped), ShouldEqual, apperr.KindBadRequest)
			So(apperr.FieldsOf(wrapped), ShouldHaveLength, 1)
			So(apperr.FieldsOf(wrapped)[0].Field, ShouldEqual, "sessionId")
		})
	})
}
