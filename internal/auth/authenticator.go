package auth

import "fmt"

// UnsupportedMechanismError reports that none of the server's offered
// mechanisms are implemented by this client, or that the caller's
// preferred mechanism was not among the server's offer.
type UnsupportedMechanismError struct {
	Offered   []string
	Preferred string
}

func (e *UnsupportedMechanismError) Error() string {
	if e.Preferred != "" {
		return fmt.Sprintf("auth: preferred mechanism %q not offered by server (offered: %v)", e.Preferred, e.Offered)
	}
	return fmt.Sprintf("auth: no supported mechanism in server offer: %v", e.Offered)
}

// Negotiate picks a Mechanism from the server's AUTH-LIST offer. preferred,
// when non-empty, must be present in offered or Negotiate fails; an empty
// preferred picks the first mutually supported mechanism in the order
// strongest-first: gssapi, ntlm, external, none.
func Negotiate(offered []string, preferred string, unixTransport bool, creds Credentials) (Mechanism, error) {
	if preferred != "" && !contains(offered, preferred) {
		return nil, &UnsupportedMechanismError{Offered: offered, Preferred: preferred}
	}

	priority := []string{"gssapi", "ntlm", "external", "none"}
	if preferred != "" {
		priority = []string{preferred}
	}

	for _, name := range priority {
		if !contains(offered, name) {
			continue
		}
		switch name {
		case "none":
			return NoneMechanism{}, nil
		case "external":
			return ExternalMechanism{UnixTransport: unixTransport}, nil
		case "ntlm":
			return &NTLMMechanism{Creds: creds}, nil
		case "gssapi":
			return &GSSAPIMechanism{Creds: creds}, nil
		}
	}

	return nil, &UnsupportedMechanismError{Offered: offered, Preferred: preferred}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
