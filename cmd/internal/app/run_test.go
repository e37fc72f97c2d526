package app

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOverrides_Apply(t *testing.T) {
	tests := []struct {
		name string
		o    Overrides
		addr string
		want string
	}{
		{name: "none keeps env", o: Overrides{}, addr: "10.0.0.1:7000", want: "10.0.0.1:7000"},
		{name: "host keeps env port", o: Overrides{Host: "127.0.0.1"}, addr: "0.0.0.0:7000", want: "127.0.0.1:7000"},
		{name: "port keeps env host", o: Overrides{Port: "8080"}, addr: "10.0.0.1:7000", want: "10.0.0.1:8080"},
		{name: "both", o: Overrides{Host: "::1", Port: "8080"}, addr: "0.0.0.0:7000", want: "[::1]:8080"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.o.apply(tt.addr)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	_, err := Overrides{Port: "8080"}.apply("no-port")
	require.ErrorIs(t, err, ErrConfig)
}
