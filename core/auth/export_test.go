package auth

// SetGoogleUserInfoURL points the userinfo lookup at u and returns the restore func.
func SetGoogleUserInfoURL(u string) func() {
	orig := googleUserInfoURL
	googleUserInfoURL = u
	return func() { googleUserInfoURL = orig }
}
