package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsier-dev/tarsier/internal/adb"
	"github.com/tarsier-dev/tarsier/internal/api"
	"github.com/tarsier-dev/tarsier/internal/config"
	"github.com/tarsier-dev/tarsier/internal/memory"
	"github.com/tarsier-dev/tarsier/internal/profile"
	"github.com/tarsier-dev/tarsier/internal/scan"
	"github.com/tarsier-dev/tarsier/internal/ui/pause"
)

const testToken = "US_" + "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz1234567890"

// adbFake answers the two adb calls a skip-provision run makes.
type adbFake struct {
	pidofOut string
}

func (f *adbFake) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	line := strings.Join(args, " ")
	switch {
	case line == "devices":
		return []byte("List of devices attached\nemulator-5554\tdevice\n"), nil
	case strings.HasPrefix(line, "shell pidof"):
		return []byte(f.pidofOut), nil
	}
	return nil, errors.New("unexpected adb call: " + line)
}

// readerFake returns a fixed window.
type readerFake struct {
	data []byte
	err  error

	gotPID    int
	gotOffset uint64
	gotSize   uint64
}

func (r *readerFake) Read(ctx context.Context, pid int, offset, size uint64) (*memory.Window, error) {
	r.gotPID, r.gotOffset, r.gotSize = pid, offset, size
	if r.err != nil {
		return nil, r.err
	}
	return &memory.Window{PID: pid, Offset: offset, Data: r.data}, nil
}

// validatorFake scripts the API side.
type validatorFake struct {
	brokerErr error
	homes     []api.Device
	gotToken  string
}

func (v *validatorFake) BrokerToken(ctx context.Context, token string) (*api.BrokerCredentials, error) {
	v.gotToken = token
	if v.brokerErr != nil {
		return nil, v.brokerErr
	}
	return &api.BrokerCredentials{Domain: "mqtt.example.com", Port: 8883, Password: "dyn"}, nil
}

func (v *validatorFake) MemberInfo(ctx context.Context, token string) (*api.Member, error) {
	return &api.Member{Nickname: "operator"}, nil
}

func (v *validatorFake) Devices(ctx context.Context, token string) ([]api.Device, error) {
	return v.homes, nil
}

func (v *validatorFake) Homes(ctx context.Context, token string) ([]api.Device, error) {
	return v.homes, nil
}

func heapWindow(extra string) []byte {
	var b strings.Builder
	b.WriteString(strings.Repeat("\x00garbage\xff", 64))
	b.WriteString(testToken)
	b.WriteString("\x00")
	b.WriteString(extra)
	b.WriteString(strings.Repeat("\xfe\x00junk", 64))
	return []byte(b.String())
}

func newTestPipeline(t *testing.T, reader memory.Reader, validator Validator) (*Pipeline, *[]State) {
	t.Helper()
	prof, err := profile.Get("home")
	require.NoError(t, err)

	var states []State
	p := &Pipeline{
		Profile:   prof,
		Config:    &config.Config{Locale: "en_US", OutputDir: t.TempDir()},
		ADB:       adb.NewWithRunner(&adbFake{pidofOut: "4242\n"}),
		Reader:    reader,
		Validator: validator,
		OutputDir: t.TempDir(),

		// no emulator in tests
		SkipProvision: true,

		Hooks: Hooks{
			OnState:    func(s State, detail string) { states = append(states, s) },
			Checkpoint: func(ctx context.Context, msg string) error { return nil },
		},
	}
	return p, &states
}

func TestRunHappyPath(t *testing.T) {
	reader := &readerFake{data: heapWindow(`{"sn":"1581F5FHD234Q00A"}`)}
	validator := &validatorFake{}
	p, states := newTestPipeline(t, reader, validator)

	arts, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []State{
		StateProvisioning,
		StateWaitingForLogin,
		StateExtracting,
		StateValidating,
		StateDone,
	}, *states)
	assert.Equal(t, StateDone, p.StateNow())

	assert.Equal(t, 4242, reader.gotPID)
	assert.Equal(t, p.Profile.WindowOffset, reader.gotOffset)
	assert.Equal(t, p.Profile.WindowSize, reader.gotSize)

	assert.Equal(t, testToken, validator.gotToken)
	require.NotNil(t, arts.Broker)
	assert.Equal(t, "mqtt.example.com", arts.Broker.Domain)
	assert.Equal(t, "1581F5FHD234Q00A", arts.Record.Get("device_sn"))

	_, statErr := os.Stat(arts.EnvPath(p.OutputDir))
	assert.NoError(t, statErr)
	_, statErr = os.Stat(arts.ReportPath(p.OutputDir))
	assert.NoError(t, statErr)
}

func TestRunBackfillsSerialFromAPI(t *testing.T) {
	reader := &readerFake{data: heapWindow("")} // no serial in memory
	validator := &validatorFake{homes: []api.Device{{SN: "ROMO0000000000001"}}}
	p, _ := newTestPipeline(t, reader, validator)

	arts, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ROMO0000000000001", arts.Record.Get("device_sn"))
}

func TestRunTokenNotFound(t *testing.T) {
	reader := &readerFake{data: []byte(strings.Repeat("\x00no token here\xff", 256))}
	p, states := newTestPipeline(t, reader, &validatorFake{})

	_, err := p.Run(context.Background())
	assert.ErrorIs(t, err, scan.ErrTokenNotFound)
	assert.NotContains(t, *states, StateValidating, "validation never runs without a token")
}

func TestRunCheckpointAborted(t *testing.T) {
	p, states := newTestPipeline(t, &readerFake{data: heapWindow("")}, &validatorFake{})
	p.Hooks.Checkpoint = func(ctx context.Context, msg string) error { return pause.ErrAborted }

	_, err := p.Run(context.Background())
	assert.ErrorIs(t, err, pause.ErrAborted)
	assert.Equal(t, StateWaitingForLogin, (*states)[len(*states)-1])
	assert.Equal(t, StateWaitingForLogin, p.StateNow(), "state reflects where the run stopped")
}

func TestRunValidationFailureStillWritesArtifacts(t *testing.T) {
	validator := &validatorFake{brokerErr: &api.ValidationError{Kind: api.KindUnauthorized, Status: 401}}
	p, _ := newTestPipeline(t, &readerFake{data: heapWindow("")}, validator)

	arts, err := p.Run(context.Background())

	var verr *api.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, api.KindUnauthorized, verr.Kind)

	require.NotNil(t, arts, "extracted values survive a failed validation")
	assert.Nil(t, arts.Broker)
	data, readErr := os.ReadFile(arts.EnvPath(p.OutputDir))
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "DJI_USER_TOKEN="+testToken)
	assert.NotContains(t, string(data), "MQTT_DOMAIN")
}

func TestRunReadFailure(t *testing.T) {
	rerr := &memory.ReadError{PID: 4242, Err: errors.New("short dump")}
	p, _ := newTestPipeline(t, &readerFake{err: rerr}, &validatorFake{})

	_, err := p.Run(context.Background())
	var got *memory.ReadError
	assert.ErrorAs(t, err, &got)
}

func TestRunNoProcess(t *testing.T) {
	p, _ := newTestPipeline(t, &readerFake{data: heapWindow("")}, &validatorFake{})
	p.ADB = adb.NewWithRunner(&adbFake{pidofOut: ""})

	_, err := p.Run(context.Background())
	assert.ErrorIs(t, err, adb.ErrNoProcess)
}

func TestStateMachine(t *testing.T) {
	assert.Equal(t, StateWaitingForLogin, StateProvisioning.next())
	assert.Equal(t, StateExtracting, StateWaitingForLogin.next())
	assert.Equal(t, StateValidating, StateExtracting.next())
	assert.Equal(t, StateDone, StateValidating.next())
	assert.True(t, StateDone.Terminal())
	assert.False(t, StateExtracting.Terminal())
}

func TestEnvFilePermissions(t *testing.T) {
	p, _ := newTestPipeline(t, &readerFake{data: heapWindow("")}, &validatorFake{})

	arts, err := p.Run(context.Background())
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(p.OutputDir, ".env.home"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	assert.Equal(t, arts.EnvPath(p.OutputDir), filepath.Join(p.OutputDir, ".env.home"))
}
