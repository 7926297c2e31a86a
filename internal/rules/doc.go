// Package rules implements the declarative priority rule engine.
//
// Rules are data: a condition (device type, sensor, operator, value plus
// optional extra clauses) and an action (SET_STATE with a payload). They
// are loaded from JSON or YAML, validated up front, and never change while
// the simulator runs.
//
// Evaluate is pure: it returns a Decision holding at most one payload per
// device and an explanation per firing. Apply commits a Decision to live
// devices. The dry-run preview calls Evaluate on cloned devices only.
//
// Example rule file:
//
//	[
//	  {
//	    "rule_id": "high_temp_ac_on",
//	    "description": "Turn AC ON if temperature exceeds 28C",
//	    "priority": 10,
//	    "enabled": true,
//	    "when": {
//	      "device_type": "AC",
//	      "sensor": "ambient_temperature",
//	      "operator": ">",
//	      "value": 28,
//	      "and": [{"sensor": "power", "operator": "==", "value": "OFF"}]
//	    },
//	    "then": {"action": "SET_STATE", "payload": {"power": "ON", "set_temperature": 24}}
//	  }
//	]
package rules
