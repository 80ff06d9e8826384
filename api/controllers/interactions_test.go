package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/haleycrew/carpool-backend/internal/rides"
	"github.com/haleycrew/carpool-backend/internal/trips"
)

type testRidesService struct {
	requestJoinFn   func(ctx context.Context, in rides.JoinInput) (*rides.JoinResult, error)
	confirmSwitchFn func(ctx context.Context, in rides.SwitchInput) (*rides.JoinResult, error)
	approveFn       func(ctx context.Context, in rides.DecisionInput) (*rides.ApproveResult, error)
	denyFn          func(ctx context.Context, in rides.DecisionInput) error
	cancelFn        func(ctx context.Context, in rides.CancelInput) (*rides.CarRef, error)
	leaveFn         func(ctx context.Context, in rides.LeaveInput) (*rides.LeaveResult, error)
	bootFn          func(ctx context.Context, in rides.BootInput) error
	addFn           func(ctx context.Context, in rides.AddInput) (*rides.AddResult, error)
	needRideFn      func(ctx context.Context, channelID string) (*rides.NeedRideResult, error)
	memberLeftFn    func(ctx context.Context, in rides.MemberLeftInput) error
}

func (s *testRidesService) RequestJoin(ctx context.Context, in rides.JoinInput) (*rides.JoinResult, error) {
	if s.requestJoinFn != nil {
		return s.requestJoinFn(ctx, in)
	}
	return nil, nil
}

func (s *testRidesService) ConfirmSwitch(ctx context.Context, in rides.SwitchInput) (*rides.JoinResult, error) {
	if s.confirmSwitchFn != nil {
		return s.confirmSwitchFn(ctx, in)
	}
	return nil, nil
}

func (s *testRidesService) ApproveRequest(ctx context.Context, in rides.DecisionInput) (*rides.ApproveResult, error) {
	if s.approveFn != nil {
		return s.approveFn(ctx, in)
	}
	return nil, nil
}

func (s *testRidesService) DenyRequest(ctx context.Context, in rides.DecisionInput) error {
	if s.denyFn != nil {
		return s.denyFn(ctx, in)
	}
	return nil
}

func (s *testRidesService) CancelRequest(ctx context.Context, in rides.CancelInput) (*rides.CarRef, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, in)
	}
	return nil, nil
}

func (s *testRidesService) Leave(ctx context.Context, in rides.LeaveInput) (*rides.LeaveResult, error) {
	if s.leaveFn != nil {
		return s.leaveFn(ctx, in)
	}
	return nil, nil
}

func (s *testRidesService) Boot(ctx context.Context, in rides.BootInput) error {
	if s.bootFn != nil {
		return s.bootFn(ctx, in)
	}
	return nil
}

func (s *testRidesService) AddMembers(ctx context.Context, in rides.AddInput) (*rides.AddResult, error) {
	if s.addFn != nil {
		return s.addFn(ctx, in)
	}
	return nil, nil
}

func (s *testRidesService) NeedRide(ctx context.Context, channelID string) (*rides.NeedRideResult, error) {
	if s.needRideFn != nil {
		return s.needRideFn(ctx, channelID)
	}
	return nil, nil
}

func (s *testRidesService) HandleMemberLeft(ctx context.Context, in rides.MemberLeftInput) error {
	if s.memberLeftFn != nil {
		return s.memberLeftFn(ctx, in)
	}
	return nil
}

func postInteraction(t *testing.T, ridesSvc rides.Service, tripsSvc trips.Service, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/interactions", strings.NewReader(body))
	resp := httptest.NewRecorder()
	Interactions(ridesSvc, tripsSvc, testLogger())(resp, req)
	return resp
}

func TestInteractionApproveRequestParsesValue(t *testing.T) {
	var got rides.DecisionInput
	ridesSvc := &testRidesService{
		approveFn: func(ctx context.Context, in rides.DecisionInput) (*rides.ApproveResult, error) {
			got = in
			return &rides.ApproveResult{Status: rides.ApproveStatusJoined, UserID: in.UserID}, nil
		},
	}

	body := `{"interaction_id":"I1","action_id":"approve_request","value":"3:UC","channel_id":"C1","user_id":"UA"}`
	resp := postInteraction(t, ridesSvc, &testTripsService{}, body)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if got.CarID != 3 || got.UserID != "UC" || got.ApproverID != "UA" || got.ChannelID != "C1" {
		t.Fatalf("input = %+v", got)
	}
}

func TestInteractionMalformedValue(t *testing.T) {
	ridesSvc := &testRidesService{
		approveFn: func(ctx context.Context, in rides.DecisionInput) (*rides.ApproveResult, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}

	for _, value := range []string{"", "abc", "0:UC", "3:", ":UC"} {
		body := `{"interaction_id":"I1","action_id":"approve_request","value":"` + value + `","channel_id":"C1","user_id":"UA"}`
		resp := postInteraction(t, ridesSvc, &testTripsService{}, body)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("value %q: unexpected status %d", value, resp.Code)
		}
	}
}

func TestInteractionConfirmSwitch(t *testing.T) {
	var got rides.SwitchInput
	ridesSvc := &testRidesService{
		confirmSwitchFn: func(ctx context.Context, in rides.SwitchInput) (*rides.JoinResult, error) {
			got = in
			return &rides.JoinResult{Status: rides.JoinStatusRequested}, nil
		},
	}

	body := `{"interaction_id":"I2","action_id":"confirm_switch","value":"2:UB","channel_id":"C1","user_id":"UB"}`
	resp := postInteraction(t, ridesSvc, &testTripsService{}, body)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if got.CarID != 2 || got.UserID != "UB" {
		t.Fatalf("input = %+v", got)
	}
}

func TestInteractionApproveTripUsesValueChannel(t *testing.T) {
	var got trips.DecisionInput
	tripsSvc := &testTripsService{
		approveFn: func(ctx context.Context, in trips.DecisionInput) (*trips.ApproveResult, error) {
			got = in
			return &trips.ApproveResult{Trip: "lake"}, nil
		},
	}

	// Button was clicked in a DM: channel_id carries the DM channel, value
	// carries the trip's channel.
	body := `{"interaction_id":"I3","action_id":"approve_trip","value":"C1","channel_id":"D-dm","user_id":"UB"}`
	resp := postInteraction(t, &testRidesService{}, tripsSvc, body)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if got.ChannelID != "C1" || got.UserID != "UB" {
		t.Fatalf("input = %+v", got)
	}
}

func TestInteractionUnknownAction(t *testing.T) {
	body := `{"interaction_id":"I4","action_id":"launch_rocket","value":"","channel_id":"C1","user_id":"UA"}`
	resp := postInteraction(t, &testRidesService{}, &testTripsService{}, body)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}
