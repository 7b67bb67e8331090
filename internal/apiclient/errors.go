package apiclient

import "errors"

// User-facing error texts, preserved verbatim from the product's UI copy.
var (
	// ErrInvalidURL is returned synchronously for an empty resource URL
	ErrInvalidURL = errors.New("URL invalide")

	// ErrUnauthorized signals a 401; the UI layer redirects to sign-in
	ErrUnauthorized = errors.New("Vous devez être connecté pour accéder à cette ressource")

	// ErrTimeout signals the per-call deadline was exceeded
	ErrTimeout = errors.New("La requête a pris trop de temps")

	// ErrConnection signals a transport-level failure
	ErrConnection = errors.New("Problème de connexion au serveur. Veuillez vérifier votre connexion internet.")

	// ErrStaleData is surfaced when a refetch fails but previous data is
	// still being served (stale-while-error)
	ErrStaleData = errors.New("Erreur de rafraîchissement. Données potentiellement obsolètes.")

	// ErrGeneric is the fallback when the server gave no error message
	ErrGeneric = errors.New("Une erreur est survenue")
)

// httpError carries a non-2xx response's message and status
type httpError struct {
	status  int
	message string
}

func (e *httpError) Error() string { return e.message }

// retryable classifies errors the fetch loop may retry: transport failures
// and 5xx responses. 401/403/404/400 are terminal.
func retryable(err error) bool {
	var he *httpError
	if errors.As(err, &he) {
		return he.status >= 500
	}
	if errors.Is(err, ErrUnauthorized) {
		return false
	}
	// transport errors (timeout, connection) are retryable
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrConnection)
}
