package adb

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner maps a joined command line to a canned response.
type fakeRunner struct {
	responses map[string]string
	errs      map[string]error
	calls     []string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	key := name + " " + strings.Join(args, " ")
	f.calls = append(f.calls, key)
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	return []byte(f.responses[key]), nil
}

func newFake() (*fakeRunner, *ADB) {
	f := &fakeRunner{responses: map[string]string{}, errs: map[string]error{}}
	return f, NewWithRunner(f)
}

func TestPidof(t *testing.T) {
	f, a := newFake()
	f.responses["adb shell pidof com.dji.home"] = "12345 12399\n"

	pid, err := a.Pidof(context.Background(), "com.dji.home")
	require.NoError(t, err)
	assert.Equal(t, 12345, pid, "first pid is the app process")
}

func TestPidofNoProcess(t *testing.T) {
	f, a := newFake()
	f.responses["adb shell pidof com.dji.home"] = ""

	_, err := a.Pidof(context.Background(), "com.dji.home")
	assert.ErrorIs(t, err, ErrNoProcess)
}

func TestPidofBadOutput(t *testing.T) {
	f, a := newFake()
	f.responses["adb shell pidof com.dji.home"] = "not-a-pid"

	_, err := a.Pidof(context.Background(), "com.dji.home")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoProcess)
}

func TestDeviceReady(t *testing.T) {
	cases := []struct {
		name string
		out  string
		want bool
	}{
		{"online emulator", "List of devices attached\nemulator-5554\tdevice\n", true},
		{"offline emulator", "List of devices attached\nemulator-5554\toffline\n", false},
		{"usb device only", "List of devices attached\nR5CT30XXXX\tdevice\n", false},
		{"no devices", "List of devices attached\n", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, a := newFake()
			f.responses["adb devices"] = tc.out
			assert.Equal(t, tc.want, a.DeviceReady(context.Background()))
		})
	}
}

func TestRoot(t *testing.T) {
	f, a := newFake()
	f.responses["adb root"] = "restarting adbd as root"
	f.responses["adb shell whoami"] = "root"

	rooted, err := a.Root(context.Background())
	require.NoError(t, err)
	assert.True(t, rooted)
}

func TestRootLimited(t *testing.T) {
	f, a := newFake()
	f.responses["adb root"] = "adbd cannot run as root in production builds"
	f.responses["adb shell whoami"] = "shell"

	rooted, err := a.Root(context.Background())
	require.NoError(t, err)
	assert.False(t, rooted)
}

func TestHasPackage(t *testing.T) {
	f, a := newFake()
	f.responses["adb shell pm list packages com.dji.home"] = "package:com.dji.home\n"
	assert.True(t, a.HasPackage(context.Background(), "com.dji.home"))

	f.responses["adb shell pm list packages com.dji.home"] = ""
	assert.False(t, a.HasPackage(context.Background(), "com.dji.home"))
}

func TestInstall(t *testing.T) {
	f, a := newFake()
	f.responses["adb install -r -g app.apk"] = "Performing Streamed Install\nSuccess"
	require.NoError(t, a.Install(context.Background(), "app.apk"))

	f.responses["adb install -r -g app.apk"] = "Failure [INSTALL_FAILED_NO_MATCHING_ABIS]"
	assert.Error(t, a.Install(context.Background(), "app.apk"))
}

func TestLaunchPrefersResolvedActivity(t *testing.T) {
	f, a := newFake()
	f.responses["adb shell cmd package resolve-activity --brief com.dji.home"] =
		"priority=0 preferredOrder=0\ncom.dji.home/.MainActivity"

	require.NoError(t, a.Launch(context.Background(), "com.dji.home"))
	assert.Contains(t, f.calls, "adb shell am start -n com.dji.home/.MainActivity")
}

func TestLaunchFallsBackToMonkey(t *testing.T) {
	f, a := newFake()
	f.errs["adb shell cmd package resolve-activity --brief com.dji.home"] = errors.New("exit 1")

	require.NoError(t, a.Launch(context.Background(), "com.dji.home"))
	assert.Contains(t, f.calls, "adb shell monkey -p com.dji.home -c android.intent.category.LAUNCHER 1")
}

func TestRemoteSize(t *testing.T) {
	f, a := newFake()
	f.responses["adb shell stat -c %s /data/local/tmp/heap.bin"] = "524288000\n"

	size, err := a.RemoteSize(context.Background(), "/data/local/tmp/heap.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(524288000), size)
}

func TestSerialPinsCommands(t *testing.T) {
	f, a := newFake()
	a.SetSerial("emulator-5554")
	f.responses["adb -s emulator-5554 shell getprop sys.boot_completed"] = "1"

	assert.True(t, a.BootCompleted(context.Background()))
}
