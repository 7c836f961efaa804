package output

import (
	"os"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsier-dev/tarsier/internal/api"
	"github.com/tarsier-dev/tarsier/internal/profile"
	"github.com/tarsier-dev/tarsier/internal/scan"
)

func testProfile() *profile.Profile {
	return &profile.Profile{
		Name:      "home",
		Package:   "com.example.app",
		EnvPrefix: "DJI",
		APIBase:   "https://api.example.com",
		Fields: []scan.Field{
			{Name: "user_token"},
			{Name: "user_name"},
			{Name: "device_sn"},
			{Name: "device_uuid", List: true},
		},
	}
}

func testArtifacts() *Artifacts {
	rec := scan.NewRecord()
	rec.Values["user_token"] = "US_" + strings.Repeat("t", 60)
	rec.Values["user_name"] = "operator"
	rec.Lists["device_uuid"] = []string{"aaaa-1111", "bbbb-2222"}

	return &Artifacts{
		Profile: testProfile(),
		Record:  rec,
		APIBase: "https://api.example.com",
		Locale:  "en_US",
		When:    time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
}

func TestWriteEnv(t *testing.T) {
	arts := testArtifacts()
	dir := t.TempDir()
	require.NoError(t, arts.WriteEnv(dir))

	data, err := os.ReadFile(arts.EnvPath(dir))
	require.NoError(t, err)
	env := string(data)

	assert.Contains(t, env, "DJI_USER_TOKEN=US_")
	assert.Contains(t, env, "DJI_USER_NAME=operator")
	assert.Contains(t, env, "DJI_DEVICE_UUID=aaaa-1111,bbbb-2222")
	assert.Contains(t, env, "DJI_API_URL=https://api.example.com")
	assert.Contains(t, env, "DJI_LOCALE=en_US")
	assert.NotContains(t, env, "DJI_DEVICE_SN=", "absent fields are omitted")
	assert.NotContains(t, env, "MQTT", "no broker lines without validation")

	if runtime.GOOS != "windows" {
		info, err := os.Stat(arts.EnvPath(dir))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}
}

func TestWriteEnvWithBroker(t *testing.T) {
	arts := testArtifacts()
	arts.Broker = &api.BrokerCredentials{
		Domain:   "mqtt.example.com",
		Port:     8883,
		UserUUID: "9f0c2a44",
		Password: "dyn-pass",
	}
	dir := t.TempDir()
	require.NoError(t, arts.WriteEnv(dir))

	data, err := os.ReadFile(arts.EnvPath(dir))
	require.NoError(t, err)
	env := string(data)

	assert.Contains(t, env, "DJI_MQTT_DOMAIN=mqtt.example.com")
	assert.Contains(t, env, "DJI_MQTT_PORT=8883")
	assert.Contains(t, env, "DJI_MQTT_PASSWORD=dyn-pass")
}

func TestWriteReport(t *testing.T) {
	arts := testArtifacts()
	dir := t.TempDir()
	require.NoError(t, arts.WriteReport(dir))

	data, err := os.ReadFile(arts.ReportPath(dir))
	require.NoError(t, err)
	report := string(data)

	assert.Contains(t, report, `credentials for profile "home"`)
	assert.Contains(t, report, "user_name:")
	assert.Contains(t, report, "operator")
	assert.Contains(t, report, "device_sn:       not found")
	assert.Contains(t, report, "not validated")
	assert.Contains(t, report, "x-member-token")
}

func TestPaths(t *testing.T) {
	arts := testArtifacts()
	assert.Equal(t, "out/.env.home", arts.EnvPath("out"))
	assert.Equal(t, "out/home_credentials.txt", arts.ReportPath("out"))
}

func TestSummaryMasksSecrets(t *testing.T) {
	arts := testArtifacts()
	s := arts.Summary()

	assert.Contains(t, s, "operator")
	assert.NotContains(t, s, arts.Record.Get("user_token"), "token must never be echoed in full")
}
