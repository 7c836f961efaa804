package emulator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeSDK(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "emulator"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "emulator", "emulator"), []byte("#!/bin/sh\n"), 0o755))
	return root
}

func TestNewFindsSDKFromEnv(t *testing.T) {
	root := fakeSDK(t)
	t.Setenv("ANDROID_HOME", root)

	e, err := New("tarsier_home")
	require.NoError(t, err)
	assert.Equal(t, root, e.SDKRoot)
	assert.Equal(t, "tarsier_home", e.AVD)
}

func TestNewWithoutSDK(t *testing.T) {
	t.Setenv("ANDROID_HOME", t.TempDir())
	t.Setenv("ANDROID_SDK_ROOT", "")
	t.Setenv("HOME", t.TempDir())

	_, err := New("x")
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "sdk", perr.Step)
}

func TestHasSystemImage(t *testing.T) {
	root := fakeSDK(t)
	t.Setenv("ANDROID_HOME", root)
	e, err := New("x")
	require.NoError(t, err)

	assert.False(t, e.HasSystemImage())

	require.NoError(t, os.MkdirAll(
		filepath.Join(root, "system-images", "android-34", "google_apis", "arm64-v8a"), 0o755))
	assert.True(t, e.HasSystemImage())
}

func TestAVDExists(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("ANDROID_HOME", fakeSDK(t))

	e, err := New("tarsier_home")
	require.NoError(t, err)
	assert.False(t, e.AVDExists())

	avdDir := filepath.Join(home, ".android", "avd")
	require.NoError(t, os.MkdirAll(avdDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(avdDir, "tarsier_home.ini"), nil, 0o644))
	assert.True(t, e.AVDExists())
}

func TestFindAPK(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"some-game.apk", "dji.go.v5_1.15.0.apk", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	apk, err := findAPK(dir, []string{"fly", "go.v5"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "dji.go.v5_1.15.0.apk"), apk)
}

func TestFindAPKNoMatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.apk"), nil, 0o644))

	_, err := findAPK(dir, []string{"dji.home", "home"})
	assert.ErrorContains(t, err, "none of the APKs")
}

func TestFindAPKEmptyDir(t *testing.T) {
	_, err := findAPK(t.TempDir(), []string{"home"})
	assert.ErrorContains(t, err, "no APK found")
}

func TestProvisioningError(t *testing.T) {
	inner := os.ErrNotExist
	err := &Error{Step: "boot", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "provisioning (boot)")
}
