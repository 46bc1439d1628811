// Package host implements the mod host: discovery of mod folders, dependency
// ordering, the load routine for code mods and content packs, the mod
// registry and the entry pass.
//
// # Load pass
//
// Core.LoadMods discovers every folder with a manifest.json under the mods
// folder, orders them so dependencies load first, then runs the load routine
// for each one in turn. Code mods name an assembly in the AssemblyCatalog;
// the assembly must contain exactly one entry type. Content packs need the
// mod they are for to be loaded already. Each loaded mod gets its own
// helpers.ModHelper and is added to the registry. Once every mod has been
// tried the registry reports AreAllModsLoaded, Entry is called on each code
// mod and GameLoop.GameLaunched is raised.
//
// # Patches
//
// Two routines of the load pass accept prefix patches, standing in for
// runtime patching of a host the patcher cannot recompile:
//
//   - PatchEntryResolution runs before the single-entry-type check.
//   - PatchModLoad runs before the load routine of each mod.
//
// Prefixes run in install order and the first one reporting handled=true
// decides the result. A panicking prefix fails the mod it was called for
// and never aborts the pass.
//
// # Services
//
// Shared services (registry, logging, events, commands, reflection,
// multiplayer, content, global data) live in unexported fields of Core.
// Mods reach them only through their helper bundle.
package host
