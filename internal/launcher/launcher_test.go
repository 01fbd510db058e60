package launcher

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLauncher(t *testing.T) {
	Convey("Launcher", t, func() {
		Convey("Starting a missing binary fails", func() {
			l := New("/nonexistent/playerd")
			So(l.Start(), ShouldNotBeNil)
			So(l.Running(), ShouldBeFalse)
		})

		Convey("Terminating before starting fails", func() {
			l := New("/bin/true")
			So(l.Terminate(), ShouldNotBeNil)
		})
	})
}
