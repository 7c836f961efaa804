// Package emulator manages the Android emulator instance the extraction
// runs against: SDK discovery, AVD creation, launch and boot waiting.
// This is environment provisioning, deliberately kept out of the
// extraction core; the pipeline only needs a booted, rooted device with
// the target app installed.
package emulator

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/tarsier-dev/tarsier/internal/adb"
	"github.com/tarsier-dev/tarsier/internal/log"
)

const systemImage = "system-images;android-34;google_apis;arm64-v8a"

// Error is a provisioning failure. Always fatal: the operator must fix
// the environment before re-running.
type Error struct {
	Step string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("provisioning (%s): %v", e.Step, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Emulator is one AVD instance under management.
type Emulator struct {
	AVD     string
	SDKRoot string
	LogPath string

	cmd *exec.Cmd
}

// New locates the Android SDK and returns a manager for the named AVD.
func New(avd string) (*Emulator, error) {
	root, err := findSDKRoot()
	if err != nil {
		return nil, &Error{Step: "sdk", Err: err}
	}
	return &Emulator{AVD: avd, SDKRoot: root}, nil
}

// findSDKRoot checks the usual env vars and install locations.
func findSDKRoot() (string, error) {
	candidates := []string{
		os.Getenv("ANDROID_HOME"),
		os.Getenv("ANDROID_SDK_ROOT"),
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, "Library/Android/sdk"),
			filepath.Join(home, "Android/Sdk"),
		)
	}
	candidates = append(candidates, "/opt/android-sdk")

	for _, c := range candidates {
		if c == "" {
			continue
		}
		if _, err := os.Stat(filepath.Join(c, "emulator", "emulator")); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("no Android SDK with an emulator binary found; set ANDROID_HOME")
}

func (e *Emulator) tool(names ...string) string {
	for _, name := range names {
		p := filepath.Join(e.SDKRoot, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	// Fall back to PATH lookup.
	base := filepath.Base(names[0])
	if p, err := exec.LookPath(base); err == nil {
		return p
	}
	return ""
}

// HasSystemImage reports whether the required system image is installed.
func (e *Emulator) HasSystemImage() bool {
	p := filepath.Join(e.SDKRoot, "system-images", "android-34", "google_apis", "arm64-v8a")
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

// AVDExists reports whether the AVD has been created.
func (e *Emulator) AVDExists() bool {
	home, err := os.UserHomeDir()
	if err != nil {
		return false
	}
	_, err = os.Stat(filepath.Join(home, ".android", "avd", e.AVD+".ini"))
	return err == nil
}

// CreateAVD creates the AVD if it does not exist yet.
func (e *Emulator) CreateAVD(ctx context.Context) error {
	if e.AVDExists() {
		return nil
	}
	if !e.HasSystemImage() {
		return &Error{Step: "avd", Err: fmt.Errorf("system image %s not installed", systemImage)}
	}
	avdmanager := e.tool(
		"cmdline-tools/latest/bin/avdmanager",
		"tools/bin/avdmanager",
	)
	if avdmanager == "" {
		return &Error{Step: "avd", Err: fmt.Errorf("avdmanager not found under %s", e.SDKRoot)}
	}

	cmd := exec.CommandContext(ctx, avdmanager,
		"create", "avd", "-n", e.AVD, "-k", systemImage, "--device", "pixel_6", "--force")
	cmd.Env = e.env()
	cmd.Stdin = strings.NewReader("no\n") // decline the custom hardware profile prompt
	if out, err := cmd.CombinedOutput(); err != nil {
		return &Error{Step: "avd", Err: fmt.Errorf("%v: %s", err, strings.TrimSpace(string(out)))}
	}
	if !e.AVDExists() {
		return &Error{Step: "avd", Err: fmt.Errorf("avdmanager reported success but %s.ini is missing", e.AVD)}
	}
	return nil
}

func (e *Emulator) env() []string {
	return append(os.Environ(),
		"ANDROID_HOME="+e.SDKRoot,
		"ANDROID_SDK_ROOT="+e.SDKRoot,
	)
}

// Start launches the emulator headed, detached, with output captured to
// a log file next to the output artifacts. No-op when a device is
// already online.
func (e *Emulator) Start(ctx context.Context, a *adb.ADB, logDir string) error {
	if a.DeviceReady(ctx) {
		log.L.Info("emulator already running")
		return nil
	}

	bin := filepath.Join(e.SDKRoot, "emulator", "emulator")
	if _, err := os.Stat(bin); err != nil {
		return &Error{Step: "start", Err: fmt.Errorf("emulator binary not found at %s", bin)}
	}

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return &Error{Step: "start", Err: err}
	}
	e.LogPath = filepath.Join(logDir, "emulator.log")
	logFile, err := os.OpenFile(e.LogPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return &Error{Step: "start", Err: err}
	}

	cmd := exec.Command(bin, "-avd", e.AVD, "-no-snapshot", "-writable-system", "-no-audio")
	cmd.Env = e.env()
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		logFile.Close()
		return &Error{Step: "start", Err: err}
	}
	e.cmd = cmd
	go func() {
		cmd.Wait()
		logFile.Close()
	}()
	log.L.Info("emulator launched", log.Pid(cmd.Process.Pid))
	return nil
}

// exited reports whether the launched emulator process has died. Only
// meaningful when this run started it.
func (e *Emulator) exited() bool {
	if e.cmd == nil || e.cmd.Process == nil {
		return false
	}
	return e.cmd.Process.Signal(syscall.Signal(0)) != nil
}

// WaitBoot polls until the device reports sys.boot_completed=1. First
// boot of an arm64 image can take several minutes.
func (e *Emulator) WaitBoot(ctx context.Context, a *adb.ADB) error {
	_ = a.WaitForDevice(ctx)

	deadline := time.Now().Add(7 * time.Minute)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.exited() {
			return &Error{Step: "boot", Err: fmt.Errorf("emulator process exited; see %s", e.LogPath)}
		}
		if a.DeviceReady(ctx) && a.BootCompleted(ctx) {
			// A few extra seconds for the launcher to settle.
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		}
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return &Error{Step: "boot", Err: fmt.Errorf("device did not finish booting in time; see %s", e.LogPath)}
}

// Stop asks the emulator to shut down and force-kills the process if it
// lingers.
func (e *Emulator) Stop(ctx context.Context, a *adb.ADB) {
	_ = a.KillEmulator(ctx)
	if e.cmd == nil || e.cmd.Process == nil {
		return
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if e.exited() {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	_ = e.cmd.Process.Signal(syscall.SIGKILL)
}

// InstallApp finds the APK on disk and installs it if needed. hints are
// lowercase substrings that identify the right file among the APKs in
// dir.
func InstallApp(ctx context.Context, a *adb.ADB, pkg, dir string, hints []string) error {
	if a.HasPackage(ctx, pkg) {
		log.L.Info("app already installed", log.Args([]string{pkg}))
		return nil
	}
	apk, err := findAPK(dir, hints)
	if err != nil {
		return &Error{Step: "install", Err: err}
	}
	if err := a.Install(ctx, apk); err != nil {
		return &Error{Step: "install", Err: err}
	}
	return nil
}

func findAPK(dir string, hints []string) (string, error) {
	entries, err := filepath.Glob(filepath.Join(dir, "*.apk"))
	if err != nil || len(entries) == 0 {
		return "", fmt.Errorf("no APK found in %s; download the app's APK and place it there", dir)
	}
	for _, path := range entries {
		name := strings.ToLower(filepath.Base(path))
		for _, h := range hints {
			if strings.Contains(name, h) {
				return path, nil
			}
		}
	}
	return "", fmt.Errorf("none of the APKs in %s match %v", dir, hints)
}
