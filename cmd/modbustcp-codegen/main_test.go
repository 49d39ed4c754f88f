package main

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/timzifer/modbustcp/config"
)

func TestExecuteConfigCheckSummarisesMasters(t *testing.T) {
	doc, err := config.Parse("plant.yaml", []byte(`modbustcp:
  - id: bus
    host: 10.0.0.5
    send_wait_time: 50ms
  - id: spare
    host: 10.0.0.6
devices:
  - id: meter
    type: sdm_meter
    modbustcp_id: bus
`))
	require.NoError(t, err)

	var out bytes.Buffer
	require.Equal(t, 0, executeConfigCheck(&out, doc))
	require.Contains(t, out.String(), "Master \"bus\"\n  Client: 10.0.0.5:502\n  Send wait time: 50 ms\n")
	require.Contains(t, out.String(), "    - meter (sdm_meter) address 0x01 [plant.yaml]\n")
	require.Contains(t, out.String(), "Master \"spare\"")
	require.Contains(t, out.String(), "    <none>\n")
}

func TestExecuteConfigCheckFails(t *testing.T) {
	doc, err := config.Parse("plant.yaml", []byte("modbustcp:\n  host: 10.0.0.5\n  port: 70000\n"))
	require.NoError(t, err)

	var out bytes.Buffer
	require.Equal(t, 1, executeConfigCheck(&out, doc))
	require.Empty(t, out.String())
}

func TestExecuteDumpAppliesPlan(t *testing.T) {
	doc, err := config.Parse("plant.yaml", []byte("logging:\n  level: error\nmodbustcp:\n  host: 10.0.0.5\ndevices:\n  - type: generic\n    address: 7\n"))
	require.NoError(t, err)
	require.NoError(t, executeDump(context.Background(), doc, false, 0))

	doc, err = config.Parse("plant.yaml", []byte("logging:\n  level: error\ndevices:\n  - type: generic\n    address: 7\n"))
	require.NoError(t, err)
	require.Error(t, executeDump(context.Background(), doc, false, 0))
}

func TestExecuteDumpChecksReachability(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	src := "logging:\n  level: error\nmodbustcp:\n  host: " + host + "\n  port: " + port + "\ndevices:\n  - type: generic\n    address: 7\n"
	doc, err := config.Parse("plant.yaml", []byte(src))
	require.NoError(t, err)
	require.NoError(t, executeDump(context.Background(), doc, true, time.Second))

	require.NoError(t, ln.Close())
	doc, err = config.Parse("plant.yaml", []byte(src))
	require.NoError(t, err)
	require.ErrorContains(t, executeDump(context.Background(), doc, true, time.Second), "1 of 1 devices unreachable")
}
