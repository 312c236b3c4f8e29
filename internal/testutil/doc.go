// Package testutil contains helper builders and fakes used across tests to
// reduce boilerplate when constructing scenarios, sessions, scripted model
// rounds and sandbox or search collaborators. They are not intended for
// production usage.
package testutil
