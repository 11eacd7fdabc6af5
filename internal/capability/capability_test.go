package capability

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func echoCallable(caller string, args ...interface{}) (interface{}, error) {
	return args, nil
}

func TestAddAndHas(t *testing.T) {
	r := New()
	require.NoError(t, r.Add("weather", "forecast", "weather", "get forecast", ScopeProcessWide, echoCallable, false))
	require.True(t, r.Has("weather:forecast"))
}

func TestAddCollisionRequiresForce(t *testing.T) {
	r := New()
	require.NoError(t, r.Add("weather", "forecast", "weather", "v1", ScopeProcessWide, echoCallable, false))
	err := r.Add("weather", "forecast", "intruder", "v2", ScopeProcessWide, echoCallable, false)
	require.Error(t, err)

	require.NoError(t, r.Add("weather", "forecast", "intruder", "v2", ScopeProcessWide, echoCallable, true))
	e := r.Detail("weather:forecast")
	require.Equal(t, "intruder", e.Owner)
	require.NotNil(t, e.predecessor)
	require.Equal(t, "weather", e.predecessor.Owner)
}

func TestRemoveStripsAllSubNames(t *testing.T) {
	r := New()
	_ = r.Add("weather", "forecast", "weather", "", ScopeProcessWide, echoCallable, false)
	_ = r.Add("weather", "status", "weather", "", ScopeProcessWide, echoCallable, false)
	_ = r.Add("clock", "now", "clock", "", ScopeProcessWide, echoCallable, false)

	removed := r.Remove("weather")
	require.Equal(t, 2, removed)
	require.False(t, r.Has("weather:forecast"))
	require.True(t, r.Has("clock:now"))
}

func TestGetTracksPerCallerCounts(t *testing.T) {
	r := New()
	_ = r.Add("weather", "forecast", "weather", "", ScopeProcessWide, echoCallable, false)

	call, err := r.Get("weather:forecast")
	require.NoError(t, err)
	_, _ = call("clock")
	_, _ = call("clock")
	_, _ = call("timer")

	e := r.Detail("weather:forecast")
	require.EqualValues(t, 3, e.CallCount())
	require.EqualValues(t, 2, e.PerCaller()["clock"])
}

func TestGetUnknownEndpointErrors(t *testing.T) {
	r := New()
	_, err := r.Get("nope:nope")
	require.Error(t, err)
}

func TestListRestrictsToTopLevel(t *testing.T) {
	r := New()
	_ = r.Add("weather", "forecast", "weather", "", ScopeProcessWide, echoCallable, false)
	_ = r.Add("clock", "now", "clock", "", ScopeProcessWide, echoCallable, false)

	require.Equal(t, []string{"weather:forecast"}, r.List("weather"))
	require.ElementsMatch(t, []string{"weather:forecast", "clock:now"}, r.List(""))
}

func TestRegisterAllExpandsPluginIDPlaceholder(t *testing.T) {
	r := New()
	err := r.RegisterAll("plugins", "weather", []EndpointDecl{
		{SubName: "{plugin-id}.status", Fn: echoCallable},
	})
	require.NoError(t, err)
	require.True(t, r.Has("plugins:weather.status"))
}
