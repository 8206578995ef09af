package adapter

import "errors"

// staged applies ledger updates only after the external interactions they depend on succeed.
// Each step runs its interaction immediately; its commit is held back until Commit, and its undo
// runs, newest first, on Rollback.
type staged struct {
	commits []func()
	undos   []func() error
}

func (s *staged) Do(interaction func() error, commit func(), undo func() error) error {
	if err := interaction(); err != nil {
		return err
	}
	if commit != nil {
		s.commits = append(s.commits, commit)
	}
	if undo != nil {
		s.undos = append(s.undos, undo)
	}
	return nil
}

func (s *staged) Commit() {
	for _, c := range s.commits {
		c()
	}
	s.commits, s.undos = nil, nil
}

func (s *staged) Rollback() error {
	var errs []error
	for i := len(s.undos) - 1; i >= 0; i-- {
		if err := s.undos[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.commits, s.undos = nil, nil
	return errors.Join(errs...)
}
