// Package di assembles a ready to use engine from configuration.
//
//	c, err := di.NewContainerFromFile("dbcommand.yaml")
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	users := source.Text[User](c.Source(), "SELECT id, name FROM users")
//	all, err := users.CachedBy(cache.Expire(60, 0)).List(ctx)
//
// Settings not present in the file are read from DBCOMMAND_ prefixed
// environment variables; see package config.
package di
