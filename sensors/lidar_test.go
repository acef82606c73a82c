package sensors_test

import (
	"context"
	"testing"
	"time"

	"go.viam.com/rdk/logging"
	"go.viam.com/test"

	s "github.com/viam-modules/viam-tsdf/sensors"
)

const testDataFrequencyHz = 5

func TestNewLidar(t *testing.T) {
	logger := logging.NewTestLogger(t)
	ctx := context.Background()

	t.Run("no lidar provided", func(t *testing.T) {
		lidar := s.NoLidar
		actualLidar, err := s.NewLidar(ctx, s.SetupDeps(lidar), string(lidar), testDataFrequencyHz, logger)
		test.That(t, err, test.ShouldBeError)
		test.That(t, err.Error(), test.ShouldContainSubstring, "error getting lidar camera")
		test.That(t, actualLidar, test.ShouldResemble, s.Lidar{})
	})

	t.Run("lidar camera not in the dependencies", func(t *testing.T) {
		lidar := s.GibberishLidar
		actualLidar, err := s.NewLidar(ctx, s.SetupDeps(lidar), string(lidar), testDataFrequencyHz, logger)
		test.That(t, err, test.ShouldBeError)
		test.That(t, err.Error(), test.ShouldContainSubstring, "error getting lidar camera gibberish_lidar")
		test.That(t, actualLidar, test.ShouldResemble, s.Lidar{})
	})

	t.Run("lidar camera without PCD support is rejected", func(t *testing.T) {
		lidar := s.LidarWithInvalidProperties
		actualLidar, err := s.NewLidar(ctx, s.SetupDeps(lidar), string(lidar), testDataFrequencyHz, logger)
		test.That(t, err, test.ShouldBeError)
		test.That(t, err.Error(), test.ShouldContainSubstring, "'camera' must support PCD")
		test.That(t, actualLidar, test.ShouldResemble, s.Lidar{})
	})

	t.Run("successful lidar creation", func(t *testing.T) {
		lidar := s.GoodLidar
		actualLidar, err := s.NewLidar(ctx, s.SetupDeps(lidar), string(lidar), testDataFrequencyHz, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, actualLidar.Name(), test.ShouldEqual, string(lidar))
		test.That(t, actualLidar.DataFrequencyHz(), test.ShouldEqual, testDataFrequencyHz)

		tsr, err := actualLidar.TimedLidarReading(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tsr.Cloud.Size(), test.ShouldEqual, 1)
	})
}

func TestTimedLidarReading(t *testing.T) {
	logger := logging.NewTestLogger(t)
	ctx := context.Background()

	lidar := s.LidarWithErroringFunctions
	erroringLidar, err := s.NewLidar(ctx, s.SetupDeps(lidar), string(lidar), testDataFrequencyHz, logger)
	test.That(t, err, test.ShouldBeNil)

	lidar = s.InvalidReplayLidar
	invalidReplayLidar, err := s.NewLidar(ctx, s.SetupDeps(lidar), string(lidar), testDataFrequencyHz, logger)
	test.That(t, err, test.ShouldBeNil)

	lidar = s.GoodLidar
	goodLidar, err := s.NewLidar(ctx, s.SetupDeps(lidar), string(lidar), testDataFrequencyHz, logger)
	test.That(t, err, test.ShouldBeNil)

	lidar = s.ReplayLidar
	goodReplayLidar, err := s.NewLidar(ctx, s.SetupDeps(lidar), string(lidar), testDataFrequencyHz, logger)
	test.That(t, err, test.ShouldBeNil)

	t.Run("when the lidar errors, returns that error", func(t *testing.T) {
		tsr, err := erroringLidar.TimedLidarReading(ctx)
		test.That(t, err, test.ShouldBeError)
		test.That(t, err.Error(), test.ShouldContainSubstring, s.InvalidSensorTestErrMsg)
		test.That(t, tsr, test.ShouldResemble, s.TimedLidarReadingResponse{})
	})

	t.Run("when the replay timestamp is invalid, returns an error", func(t *testing.T) {
		tsr, err := invalidReplayLidar.TimedLidarReading(ctx)
		test.That(t, err, test.ShouldBeError)
		test.That(t, err.Error(), test.ShouldContainSubstring, "replay sensor timestamp parse error")
		test.That(t, err.Error(), test.ShouldContainSubstring, "cannot parse")
		test.That(t, tsr, test.ShouldResemble, s.TimedLidarReadingResponse{})
	})

	t.Run("when a live lidar succeeds, returns the cloud and current time in UTC", func(t *testing.T) {
		beforeReading := time.Now().UTC()
		time.Sleep(10 * time.Millisecond)

		tsr, err := goodLidar.TimedLidarReading(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tsr.Cloud, test.ShouldNotBeNil)
		test.That(t, tsr.Cloud.Size(), test.ShouldEqual, 1)
		test.That(t, tsr.ReadingTime.After(beforeReading), test.ShouldBeTrue)
		test.That(t, tsr.ReadingTime.Location(), test.ShouldEqual, time.UTC)
		test.That(t, tsr.IsReplaySensor, test.ShouldBeFalse)
	})

	t.Run("when a replay lidar succeeds, returns the replay sensor time", func(t *testing.T) {
		tsr, err := goodReplayLidar.TimedLidarReading(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tsr.Cloud, test.ShouldNotBeNil)

		readingTime, err := time.Parse(time.RFC3339Nano, s.TestTimestamp)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tsr.ReadingTime.Equal(readingTime), test.ShouldBeTrue)
		test.That(t, tsr.IsReplaySensor, test.ShouldBeTrue)
	})
}
