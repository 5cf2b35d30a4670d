// Package browser drives recipe steps against a real page through Playwright.
//
// # Architecture
//
// The package is built around three pieces:
//
//  1. Session: a Playwright browser, its isolated context and the active page
//  2. SessionManager: starts and tears down sessions and the Playwright driver
//  3. Engine: the runner-facing surface (navigate, act, observe, extract,
//     screenshot, DOM snippets) bound to one session
//
// # Page excerpts
//
// DOM snippets handed to the authoring service and the language model are
// cleaned with golang.org/x/net/html: scripts, styles and embedded documents
// are dropped while targeting attributes (id, class, role, aria-*, data-*,
// name, placeholder) are kept. Observe parses the same tree to list
// interactive candidates for an instruction without calling a model.
//
// # Example
//
//	mgr := browser.NewSessionManager()
//	if err := mgr.Initialize(); err != nil {
//		return err
//	}
//	defer mgr.Shutdown()
//
//	session, err := mgr.StartSession("run", browser.SessionOptions{Headless: true})
//	if err != nil {
//		return err
//	}
//	engine := browser.NewEngine(session, browser.EngineOptions{})
//	err = engine.Navigate(ctx, "https://example.com")
package browser
