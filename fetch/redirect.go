package fetch

// CheckRedirect fails with a *RedirectError when resp went through at least
// one redirect. Status codes are not inspected here.
func CheckRedirect(resp *Response) error {
	if resp == nil || len(resp.History) == 0 {
		return nil
	}
	return &RedirectError{Origin: resp.History[0], Final: resp.FinalURL}
}
