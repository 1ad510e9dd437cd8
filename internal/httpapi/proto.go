package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/prezens/server/internal/prezens/types"
)

// maxRequestBody caps the request body size for both protobuf and JSON
// payloads. Meeting payloads with large rosters are the biggest bodies.
const maxRequestBody = 64 << 10

// Kiosk clients post check-ins as a google.protobuf.Struct carrying the same
// field names as the JSON body, and get the decision back the same way.
const protoContentType = "application/x-protobuf"

var errBadProtobuf = errors.New("invalid protobuf body")

// isProtobuf reports whether the request body is a protobuf message.
func isProtobuf(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mt == protoContentType || mt == "application/protobuf"
}

// readCheckInProto decodes a check-in request from a protobuf Struct body.
// A body that is not a Struct yields errBadProtobuf; a Struct with wrongly
// typed fields yields a plain validation message.
func readCheckInProto(r *http.Request) (types.CheckInRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return types.CheckInRequest{}, fmt.Errorf("%w: %v", errBadProtobuf, err)
	}
	var msg structpb.Struct
	if err := proto.Unmarshal(body, &msg); err != nil {
		return types.CheckInRequest{}, fmt.Errorf("%w: %v", errBadProtobuf, err)
	}
	return checkInFromStruct(&msg)
}

// checkInFromStruct maps Struct fields onto a request. Numbers arrive as
// float64, so meeting_id must be integral; coordinates may be null.
func checkInFromStruct(s *structpb.Struct) (types.CheckInRequest, error) {
	var req types.CheckInRequest
	f := s.GetFields()

	if v, ok := f["meeting_id"]; ok {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok || n.NumberValue != math.Trunc(n.NumberValue) {
			return req, errors.New("meeting_id must be an integer")
		}
		req.MeetingID = int64(n.NumberValue)
	}
	for name, dst := range map[string]**float64{"latitude": &req.Latitude, "longitude": &req.Longitude} {
		v, ok := f[name]
		if !ok {
			continue
		}
		switch k := v.GetKind().(type) {
		case *structpb.Value_NullValue:
		case *structpb.Value_NumberValue:
			x := k.NumberValue
			*dst = &x
		default:
			return req, fmt.Errorf("%s must be a number", name)
		}
	}
	req.VerificationMethod = types.VerificationMethod(f["verification_method"].GetStringValue())
	req.Notes = f["notes"].GetStringValue()
	return req, nil
}

// writeCheckInProto encodes resp as a Struct with the JSON field names. On
// error nothing has been written, so the caller can still send a JSON error.
func writeCheckInProto(w http.ResponseWriter, status int, resp types.CheckInResponse) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return err
	}
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return err
	}
	data, err := proto.Marshal(msg)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", protoContentType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
	return nil
}
