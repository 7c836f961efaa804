// Package adb wraps the adb binary. Every privileged operation the
// pipeline performs on the emulator - process lookup, memory dump, file
// pull - goes through here, so tests can swap the runner for a fake.
package adb

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/tarsier-dev/tarsier/internal/log"
)

// ErrNoProcess is returned when a package has no running process.
var ErrNoProcess = errors.New("process not found")

// Runner executes an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

// ADB issues commands against one device.
type ADB struct {
	r      Runner
	serial string
}

// New returns an ADB talking to the default device.
func New() *ADB {
	return &ADB{r: execRunner{}}
}

// NewWithRunner is the test constructor.
func NewWithRunner(r Runner) *ADB {
	return &ADB{r: r}
}

// SetSerial pins all subsequent commands to one device.
func (a *ADB) SetSerial(serial string) { a.serial = serial }

func (a *ADB) run(ctx context.Context, args ...string) (string, error) {
	if a.serial != "" {
		args = append([]string{"-s", a.serial}, args...)
	}
	log.L.Debug("adb", log.Args(args))
	out, err := a.r.Run(ctx, "adb", args...)
	return strings.TrimSpace(string(out)), err
}

// Shell runs a command on the device.
func (a *ADB) Shell(ctx context.Context, cmd ...string) (string, error) {
	return a.run(ctx, append([]string{"shell"}, cmd...)...)
}

// DeviceReady reports whether an emulator device is attached and online.
func (a *ADB) DeviceReady(ctx context.Context) bool {
	out, err := a.run(ctx, "devices")
	if err != nil {
		return false
	}
	for _, line := range strings.Split(out, "\n")[1:] {
		fields := strings.Fields(line)
		if len(fields) >= 2 && strings.HasPrefix(fields[0], "emulator") && fields[1] == "device" {
			return true
		}
	}
	return false
}

// WaitForDevice blocks until a device is visible to adb.
func (a *ADB) WaitForDevice(ctx context.Context) error {
	_, err := a.run(ctx, "wait-for-device")
	return err
}

// BootCompleted reports whether the system has finished booting.
func (a *ADB) BootCompleted(ctx context.Context) bool {
	out, err := a.Shell(ctx, "getprop", "sys.boot_completed")
	return err == nil && strings.TrimSpace(out) == "1"
}

// Root restarts adbd with root privileges and reports whether the shell
// is actually root afterwards. Some images only grant a limited root;
// the caller decides whether that is fatal.
func (a *ADB) Root(ctx context.Context) (bool, error) {
	if _, err := a.run(ctx, "root"); err != nil {
		return false, err
	}
	out, err := a.Shell(ctx, "whoami")
	if err != nil {
		return false, err
	}
	return strings.Contains(out, "root"), nil
}

// Pidof resolves the main process id of a package. Multiple pids can be
// reported for apps with isolated services; the first one is the app.
func (a *ADB) Pidof(ctx context.Context, pkg string) (int, error) {
	out, err := a.Shell(ctx, "pidof", pkg)
	if err != nil || out == "" {
		return 0, fmt.Errorf("pidof %s: %w", pkg, ErrNoProcess)
	}
	pid, err := strconv.Atoi(strings.Fields(out)[0])
	if err != nil {
		return 0, fmt.Errorf("pidof %s: unexpected output %q", pkg, out)
	}
	return pid, nil
}

// HasPackage reports whether pkg is installed.
func (a *ADB) HasPackage(ctx context.Context, pkg string) bool {
	out, err := a.Shell(ctx, "pm", "list", "packages", pkg)
	return err == nil && strings.Contains(out, "package:"+pkg)
}

// Install side-loads an APK, granting runtime permissions up front.
func (a *ADB) Install(ctx context.Context, apkPath string) error {
	out, err := a.run(ctx, "install", "-r", "-g", apkPath)
	if err != nil {
		return err
	}
	if !strings.Contains(out, "Success") {
		return fmt.Errorf("install %s: %s", apkPath, out)
	}
	return nil
}

// ResolveLauncher returns the pkg/activity string of the launcher
// activity, or "" when it cannot be resolved.
func (a *ADB) ResolveLauncher(ctx context.Context, pkg string) string {
	out, err := a.Shell(ctx, "cmd", "package", "resolve-activity", "--brief", pkg)
	if err != nil {
		return ""
	}
	lines := strings.Split(out, "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if strings.Contains(last, "/") {
		return last
	}
	return ""
}

// Launch starts the app, preferring the resolved launcher activity and
// falling back to the monkey launcher.
func (a *ADB) Launch(ctx context.Context, pkg string) error {
	if activity := a.ResolveLauncher(ctx, pkg); activity != "" {
		_, err := a.Shell(ctx, "am", "start", "-n", activity)
		return err
	}
	_, err := a.Shell(ctx, "monkey", "-p", pkg, "-c", "android.intent.category.LAUNCHER", "1")
	return err
}

// Pull copies a file off the device.
func (a *ADB) Pull(ctx context.Context, remote, local string) error {
	_, err := a.run(ctx, "pull", remote, local)
	return err
}

// RemoteSize stats a file on the device and returns its size in bytes.
func (a *ADB) RemoteSize(ctx context.Context, remote string) (int64, error) {
	out, err := a.Shell(ctx, "stat", "-c", "%s", remote)
	if err != nil {
		return 0, err
	}
	size, err := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("stat %s: unexpected output %q", remote, out)
	}
	return size, nil
}

// Remove deletes a file on the device, best effort.
func (a *ADB) Remove(ctx context.Context, remote string) {
	_, _ = a.Shell(ctx, "rm", "-f", remote)
}

// KillEmulator asks a running emulator to shut down.
func (a *ADB) KillEmulator(ctx context.Context) error {
	_, err := a.run(ctx, "emu", "kill")
	return err
}
