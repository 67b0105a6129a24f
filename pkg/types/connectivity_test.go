package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionStatus_String(t *testing.T) {
	assert.Equal(t, "checking", StatusChecking.String())
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "offline", StatusOffline.String())
	assert.Equal(t, "server_unavailable", StatusServerUnavailable.String())
	assert.Equal(t, "unknown", ConnectionStatus(42).String())
}

func TestConnectionStatus_IsProblem(t *testing.T) {
	assert.False(t, StatusChecking.IsProblem())
	assert.False(t, StatusConnected.IsProblem())
	assert.True(t, StatusOffline.IsProblem())
	assert.True(t, StatusServerUnavailable.IsProblem())
}

func TestParseConnectionStatus(t *testing.T) {
	for _, s := range []ConnectionStatus{StatusChecking, StatusConnected, StatusOffline, StatusServerUnavailable} {
		got, err := ParseConnectionStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := ParseConnectionStatus("partially_connected")
	assert.Error(t, err)
}

func TestConnectionStatus_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Status ConnectionStatus `json:"status"`
	}{StatusServerUnavailable})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"server_unavailable"}`, string(data))

	var out struct {
		Status ConnectionStatus `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"status":"offline"}`), &out))
	assert.Equal(t, StatusOffline, out.Status)
}

// 未知可达性按可达处理
func TestDeviceState_Online(t *testing.T) {
	tests := []struct {
		name  string
		state DeviceState
		want  bool
	}{
		{"disconnected", DeviceState{IsConnected: false, InternetReachable: ReachabilityReachable}, false},
		{"connected reachable", DeviceState{IsConnected: true, InternetReachable: ReachabilityReachable}, true},
		{"connected unknown", DeviceState{IsConnected: true, InternetReachable: ReachabilityUnknown}, true},
		{"connected unreachable", DeviceState{IsConnected: true, InternetReachable: ReachabilityUnreachable}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.Online())
		})
	}
}

func TestStatusChange_Recovered(t *testing.T) {
	assert.True(t, StatusChange{Previous: StatusOffline, Current: StatusConnected}.Recovered())
	assert.True(t, StatusChange{Previous: StatusServerUnavailable, Current: StatusConnected}.Recovered())
	assert.False(t, StatusChange{Previous: StatusChecking, Current: StatusConnected}.Recovered())
	assert.False(t, StatusChange{Previous: StatusConnected, Current: StatusOffline}.Recovered())
}
