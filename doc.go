// Package repopattern wires units of work into an application. A Builder
// picks the unit of work factory and its Lifetime, New turns it into a
// Provider, and NewFromConfig does the same from a database.Config.
//
//	p, err := repopattern.New(func(b *repopattern.Builder) {
//		b.UseBun(db).UseLifetime(repopattern.Scoped)
//	})
//	scope := p.NewScope()
//	defer scope.Close()
//	u, err := scope.UnitOfWork(ctx)
//	users := unitofwork.Repository[User](u)
//
// Service is a small per-call façade over a Provider for simple CRUD code.
package repopattern
