package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

type testLogger struct {
	mu     sync.Mutex
	errors int
}

func (l *testLogger) Errorf(string, ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors++
}

func (l *testLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errors
}

func TestScheduler(t *testing.T) {
	Convey("Given a scheduler", t, func() {
		logger := &testLogger{}
		s := New(logger)

		Convey("An invalid cron spec is rejected at registration", func() {
			err := s.AddJob("backup", "not a cron spec", func(context.Context) error { return nil })
			So(err, ShouldNotBeNil)
		})

		Convey("A six-field spec is accepted", func() {
			err := s.AddJob("backup", "0 0 2 * * *", func(context.Context) error { return nil })
			So(err, ShouldBeNil)
		})

		Convey("When a per-second job runs", func() {
			ran := make(chan struct{}, 4)
			err := s.AddJob("tick", "* * * * * *", func(context.Context) error {
				select {
				case ran <- struct{}{}:
				default:
				}
				return nil
			})
			So(err, ShouldBeNil)

			s.Start()
			defer s.Stop()

			Convey("It fires on schedule", func() {
				select {
				case <-ran:
				case <-time.After(3 * time.Second):
					t.Fatal("job never ran")
				}
			})
		})

		Convey("When a job keeps failing", func() {
			ran := make(chan struct{}, 4)
			err := s.AddJob("flaky", "* * * * * *", func(context.Context) error {
				select {
				case ran <- struct{}{}:
				default:
				}
				return errors.New("boom")
			})
			So(err, ShouldBeNil)

			s.Start()
			defer s.Stop()

			Convey("The failure is logged and later runs still fire", func() {
				for i := 0; i < 2; i++ {
					select {
					case <-ran:
					case <-time.After(3 * time.Second):
						t.Fatal("job stopped firing")
					}
				}
				So(logger.errorCount(), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})
	})
}
