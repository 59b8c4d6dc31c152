package ulsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestAE1ThroughAE3RequestorHappyPath walks the requestor side of a
// normal association establishment (PS3.8 Table 9-8, transitions
// AE-1/AE-2/AE-3).
func TestAE1ThroughAE3RequestorHappyPath(t *testing.T) {
	m := NewMachine()

	res := m.Step(EvAAssociateRequest)
	require.Equal(t, Sta4, res.NextState)

	res = m.Step(EvTransportConnectConfirm)
	require.Equal(t, Sta5, res.NextState)
	require.Contains(t, res.Actions, ActionSendAssociateRQ)

	res = m.Step(EvRecvAssociateAC)
	require.Equal(t, Sta6, res.NextState)
}

// TestReleaseCollisionEntersSta9ForRequestor exercises the Sta7/Sta9-12
// release-collision branch (PS3.8 Table 9-8 footnote, ARx-1..5).
func TestReleaseCollisionEntersSta9ForRequestor(t *testing.T) {
	m := NewMachine()
	m.Step(EvAAssociateRequest)
	m.Step(EvTransportConnectConfirm)
	m.Step(EvRecvAssociateAC)
	require.Equal(t, Sta6, m.State())

	res := m.Step(EvAReleaseRequest)
	require.Equal(t, Sta7, res.NextState)

	res = m.Step(EvRecvReleaseRQ)
	require.Equal(t, Sta9, res.NextState, "a release request crossing the peer's own should collide into Sta9")
}
