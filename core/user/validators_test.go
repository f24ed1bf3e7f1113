package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/studyplanner/core"
)

func TestPasswordPolicy(t *testing.T) {
	tests := []struct {
		pwd   string
		attrs []string
		want  string
	}{
		{pwd: "Sh0rt!", want: pwdMinLenTag},
		{pwd: "Has Space1!", want: pwdNoSpaceTag},
		{pwd: "1234567890", want: pwdNotAllNumTag},
		{pwd: "alllowercase1!", want: pwdComplexityTag},
		{pwd: "NoDigits!!", want: pwdComplexityTag},
		{pwd: "NoSpecial123", want: pwdComplexityTag},
		{pwd: "Janedoe1!", attrs: []string{"Jane Doe", "janedoe@test.cd"}, want: pwdAttrSimTag},
		{pwd: "Password1!", want: pwdNoCommonTag},
		{pwd: "Tr0ub4dor&3", attrs: []string{"Jane Doe", "jane@test.cd"}},
	}
	for _, tt := range tests {
		t.Run(tt.pwd, func(t *testing.T) {
			assert.Equal(t, tt.want, brokenPasswordRule(tt.pwd, tt.attrs...))
		})
	}
}

func TestNewUser_Validate(t *testing.T) {
	svc := NewService(emptyRepo{})

	nu := NewUser{FullName: " Jane ", Email: " Jane@Test.CD ", Password: "Tr0ub4dor&3"}
	require.NoError(t, nu.Validate(svc))
	assert.Equal(t, "Jane", nu.FullName)
	assert.Equal(t, "jane@test.cd", nu.Email)

	nu = NewUser{Email: "nope", Password: "weak"}
	err := nu.Validate(svc)
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	fields := make(map[string]string)
	for _, f := range vErr.Fields {
		fields[f.Field] = f.Error
	}
	assert.Contains(t, fields, "email")
	assert.Equal(t, pwdMinLenText, fields["password"])
}

type emptyRepo struct {
	Repository
}

func (emptyRepo) GetUser(ctx context.Context, filter GetFilter) (User, error) {
	return User{}, ErrNotFound
}
