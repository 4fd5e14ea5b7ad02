package models

// User is a directory entry. Identity and authentication live outside this
// service, only the attributes needed for assignment and display are kept.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Label is a named group of users, used as an operator or manager target.
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
