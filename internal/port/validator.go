package port

// DocumentValidator confirms raw bytes are an acceptable document before parsing.
type DocumentValidator interface {
	Validate(data []byte) error
}
