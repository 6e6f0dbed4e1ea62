package callproto

import (
	"testing"

	"DoorbellCall/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalParse(t *testing.T) {
	t.Run("request", func(t *testing.T) {
		raw, err := Marshal(MethodJoin, "req-1", CallData{Call: model.CallRef{Type: "default", ID: "FRONT1234567"}})
		require.NoError(t, err)

		env, err := Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, MethodJoin, env.Type)
		assert.Equal(t, "req-1", env.ID)

		var data CallData
		require.NoError(t, env.Decode(&data))
		assert.Equal(t, "default:FRONT1234567", data.Call.CID())
	})

	t.Run("no_data", func(t *testing.T) {
		raw, err := Marshal(TypeHeartbeat, "", nil)
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"heartbeat"}`, string(raw))

		env, err := Parse(raw)
		require.NoError(t, err)
		var data CallData
		require.NoError(t, env.Decode(&data))
		assert.Empty(t, data.Call.ID)
	})

	t.Run("error_response", func(t *testing.T) {
		raw, err := MarshalError("req-2", 16005, "call not found")
		require.NoError(t, err)
		env, err := Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, TypeResponse, env.Type)
		require.NotNil(t, env.Error)
		assert.Equal(t, 16005, env.Error.Code)

		raw, err = MarshalError("", CodeInvalidFormat, "invalid frame format")
		require.NoError(t, err)
		env, err = Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, TypeError, env.Type)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := Parse(nil)
		assert.ErrorIs(t, err, ErrEmptyFrame)
		_, err = Parse([]byte(`{"id":"x"}`))
		assert.ErrorIs(t, err, ErrEmptyFrame)
		_, err = Parse([]byte(`not json`))
		assert.Error(t, err)
	})
}

func TestMemberRecordShapes(t *testing.T) {
	raw := []byte(`{"type":"response","id":"1","data":{"members":[{"user":{"id":"anon-a"}},{"user_id":"resident-b"}]}}`)
	env, err := Parse(raw)
	require.NoError(t, err)
	var res QueryMembersResult
	require.NoError(t, env.Decode(&res))
	require.Len(t, res.Members, 2)
	assert.Equal(t, "anon-a", res.Members[0].ID())
	assert.Equal(t, "resident-b", res.Members[1].ID())
}
