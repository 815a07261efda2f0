package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockApp struct {
	mock.Mock
}

func (m *mockApp) LoadConfig(path string) error {
	return m.Called(path).Error(0)
}

func (m *mockApp) RunSimulate(opts SimulateOptions) error {
	return m.Called(opts).Error(0)
}

func (m *mockApp) RunReplay(opts ReplayOptions) error {
	return m.Called(opts).Error(0)
}

func (m *mockApp) RunServe(opts ServeOptions) error {
	return m.Called(opts).Error(0)
}

func execute(app Runner, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCmd(app, &out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRun_Commands(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		config string
		expect func(*mockApp)
	}{
		{
			name: "simulate defaults",
			args: []string{"simulate"},
			expect: func(m *mockApp) {
				m.On("RunSimulate", SimulateOptions{Steps: 200, Plot: true}).Return(nil)
			},
		},
		{
			name:   "simulate flags",
			args:   []string{"--config", "c.yaml", "simulate", "--steps", "20", "--particles", "10", "--seed", "7", "--output", "map.svg", "--plot=false"},
			config: "c.yaml",
			expect: func(m *mockApp) {
				m.On("RunSimulate", SimulateOptions{Steps: 20, Particles: 10, Seed: 7, Output: "map.svg"}).Return(nil)
			},
		},
		{
			name: "replay",
			args: []string{"replay", "run.json", "--limit", "100", "--output", "out.png"},
			expect: func(m *mockApp) {
				m.On("RunReplay", ReplayOptions{Source: "run.json", Limit: 100, Output: "out.png", Plot: true}).Return(nil)
			},
		},
		{
			name: "replay url",
			args: []string{"replay", "https://example.com/run.json", "--particles", "30", "--seed", "3"},
			expect: func(m *mockApp) {
				m.On("RunReplay", ReplayOptions{Source: "https://example.com/run.json", Particles: 30, Seed: 3, Plot: true}).Return(nil)
			},
		},
		{
			name: "serve",
			args: []string{"serve", "--http-port", "9090", "--no-mqtt"},
			expect: func(m *mockApp) {
				m.On("RunServe", ServeOptions{HTTPPort: 9090, NoMQTT: true}).Return(nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockApp{}
			m.On("LoadConfig", tt.config).Return(nil)
			tt.expect(m)

			_, err := execute(m, tt.args...)
			require.NoError(t, err)
			m.AssertExpectations(t)
		})
	}
}

func TestRun_Version(t *testing.T) {
	m := &mockApp{}
	out, err := execute(m, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "fastslam version: dev")
	m.AssertNotCalled(t, "LoadConfig", mock.Anything)
}

func TestRun_ConfigError(t *testing.T) {
	m := &mockApp{}
	m.On("LoadConfig", "missing.yaml").Return(errors.New("config file not found"))

	_, err := execute(m, "--config", "missing.yaml", "simulate")
	require.Error(t, err)
	m.AssertNotCalled(t, "RunSimulate", mock.Anything)
}

func TestRun_ReplayNeedsDataset(t *testing.T) {
	m := &mockApp{}
	m.On("LoadConfig", "").Return(nil)

	_, err := execute(m, "replay")
	require.Error(t, err)
	m.AssertNotCalled(t, "RunReplay", mock.Anything)
}

func TestRun_CommandError(t *testing.T) {
	m := &mockApp{}
	m.On("LoadConfig", "").Return(nil)
	m.On("RunSimulate", mock.Anything).Return(errors.New("boom"))

	out, err := execute(m, "simulate")
	require.Error(t, err)
	assert.True(t, strings.Contains(out, "boom"), "error is printed: %q", out)
}

func TestRun_UnknownCommand(t *testing.T) {
	_, err := execute(&mockApp{}, "calibrate")
	assert.Error(t, err)
}
