// Package lua loads skills written in Lua.
//
// A skill script registers one or more constructors with the global skill
// table. Each constructor returns the skill as a table:
//
//	local Echo = function()
//	  return skill.base{
//	    name = "Echo",
//	    rule = { { fnc = "say", event = "message" } },
//	    say = function(self, e, ...)
//	      return e.msg
//	    end,
//	  }
//	end
//
//	skill.register(Echo)
//
// skill.base fills in priority 50, empty rule and task lists, bypassThrottle
// false, an accept hook returning skill.CONTINUE and a no-op handle_unmatched.
//
// Every plugin instance runs in its own state with only the base, table,
// string and math libraries. print and skill.log write to the bridge logger,
// never to stdout.
package lua
