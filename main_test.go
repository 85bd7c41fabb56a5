package main

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmware/govmomi/vim25/types"
)

func TestMain(m *testing.M) {
	log = logrus.New()
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func TestBuildHostReportDisconnected(t *testing.T) {
	host, dvs, dvpgs, _ := testInventory()
	host.Runtime.ConnectionState = types.HostSystemConnectionStateDisconnected

	_, err := buildHostReport(nil, &inventory{dvSwitches: dvs, dvPortgroups: dvpgs}, host, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disconnected")
}
